package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/eamonnk/agentd/pkg/memory"
	"github.com/eamonnk/agentd/pkg/tools"
)

const (
	ToolNameAddMemory    = "add_memory"
	ToolNameGetMemories  = "get_memories"
	ToolNameDeleteMemory = "delete_memory"
)

type AddMemoryArgs struct {
	Memory string `json:"memory" jsonschema:"The memory content to store"`
}

type GetMemoriesArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of memories to return"`
}

type DeleteMemoryArgs struct {
	ID string `json:"id" jsonschema:"The ID of the memory to delete"`
}

func memoryTools(driver memory.Driver) []tools.Tool {
	return []tools.Tool{
		{
			Name:        ToolNameAddMemory,
			Description: "Store a new memory about the user",
			Parameters:  tools.MustSchemaMap[AddMemoryArgs](),
			Handler: tools.NewHandler(func(ctx context.Context, args AddMemoryArgs) (*tools.ToolCallResult, error) {
				if err := driver.Store(ctx, "", args.Memory); err != nil {
					return nil, fmt.Errorf("failed to add memory: %w", err)
				}
				return tools.ResultSuccess("Memory added successfully"), nil
			}),
		},
		{
			Name:        ToolNameGetMemories,
			Description: "Retrieve stored memories, newest first",
			Parameters:  tools.MustSchemaMap[GetMemoriesArgs](),
			Handler: tools.NewHandler(func(ctx context.Context, args GetMemoriesArgs) (*tools.ToolCallResult, error) {
				entries, err := driver.Retrieve(ctx, args.Limit)
				if err != nil {
					return nil, fmt.Errorf("failed to get memories: %w", err)
				}
				result, err := json.Marshal(entries)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal memories: %w", err)
				}
				return tools.ResultSuccess(string(result)), nil
			}),
		},
		{
			Name:        ToolNameDeleteMemory,
			Description: "Delete a specific memory by ID",
			Parameters:  tools.MustSchemaMap[DeleteMemoryArgs](),
			Handler: tools.NewHandler(func(ctx context.Context, args DeleteMemoryArgs) (*tools.ToolCallResult, error) {
				if err := driver.Delete(ctx, args.ID); err != nil {
					return nil, fmt.Errorf("failed to delete memory: %w", err)
				}
				return tools.ResultSuccess(fmt.Sprintf("Memory with ID %s deleted successfully", args.ID)), nil
			}),
		},
	}
}
