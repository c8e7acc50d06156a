package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/eamonnk/agentd/pkg/tools"
)

const ToolNameCurrentTime = "current_time"

type CurrentTimeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"IANA timezone name, defaults to UTC"`
}

func datetimeTools() []tools.Tool {
	return []tools.Tool{
		{
			Name:        ToolNameCurrentTime,
			Description: "Get the current date and time, optionally in a specific timezone.",
			Parameters:  tools.MustSchemaMap[CurrentTimeArgs](),
			Handler:     tools.NewHandler(handleCurrentTime),
		},
	}
}

func handleCurrentTime(_ context.Context, args CurrentTimeArgs) (*tools.ToolCallResult, error) {
	loc := time.UTC
	if args.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(args.Timezone)
		if err != nil {
			return tools.ResultError(fmt.Sprintf("unknown timezone: %s", args.Timezone)), nil
		}
	}

	return tools.ResultSuccess(time.Now().In(loc).Format(time.RFC3339)), nil
}
