package tools

import (
	"context"

	"github.com/BaSui01/nifimcp/nifi"
)

type noArgs struct{}

type processGroupArgs struct {
	ProcessGroupID string `json:"process_group_id" validate:"required" desc:"Process group ID; use \"root\" for the root group"`
}

type optionalGroupArgs struct {
	ProcessGroupID string `json:"process_group_id,omitempty" desc:"Process group ID; defaults to the root group"`
}

func (a optionalGroupArgs) group() string {
	if a.ProcessGroupID == "" {
		return "root"
	}
	return a.ProcessGroupID
}

type processorArgs struct {
	ProcessorID string `json:"processor_id" validate:"required" desc:"Processor ID"`
}

type connectionArgs struct {
	ConnectionID string `json:"connection_id" validate:"required" desc:"Connection ID"`
}

type bulletinArgs struct {
	After          int64  `json:"after,omitempty" validate:"min=0" desc:"Only return bulletins with an ID greater than this"`
	ProcessGroupID string `json:"process_group_id,omitempty" desc:"Restrict to one process group"`
	Limit          int    `json:"limit,omitempty" validate:"min=0" desc:"Maximum number of bulletins"`
}

type parameterContextArgs struct {
	ParameterContextID string `json:"parameter_context_id" validate:"required" desc:"Parameter context ID"`
}

type serviceListArgs struct {
	ProcessGroupID string `json:"process_group_id,omitempty" desc:"Process group ID; empty lists controller-level services"`
}

type serviceArgs struct {
	ServiceID string `json:"service_id" validate:"required" desc:"Controller service ID"`
}

type serviceTypeArgs struct {
	ProcessGroupID string `json:"process_group_id,omitempty" desc:"Process group ID; empty searches controller-level services"`
	Type           string `json:"type" validate:"required" desc:"Type name or a case-insensitive part of it"`
}

type searchArgs struct {
	Query string `json:"query" validate:"required" desc:"Search term"`
}

// readTools 只读工具
func readTools(c *nifi.Client) []ToolSpec {
	return []ToolSpec{
		define("get_nifi_version", "Detect the NiFi version and whether it belongs to the 2.x epoch.", readEffect,
			func(ctx context.Context, _ noArgs) (any, error) {
				v := c.DetectVersion(ctx)
				return map[string]any{
					"version": v.String(),
					"major":   v.Major,
					"minor":   v.Minor,
					"patch":   v.Patch,
					"epoch2":  v.IsEpoch2(),
				}, nil
			}),
		define("get_root_process_group", "Get the root process group and its direct contents.", readEffect,
			func(ctx context.Context, _ noArgs) (any, error) {
				return c.GetRootProcessGroup(ctx)
			}),
		define("get_process_group", "Get a process group entity.", readEffect,
			func(ctx context.Context, a processGroupArgs) (any, error) {
				return c.GetProcessGroup(ctx, a.ProcessGroupID)
			}),
		define("list_processors", "List the processors in a process group.", readEffect,
			func(ctx context.Context, a processGroupArgs) (any, error) {
				return c.ListProcessors(ctx, a.ProcessGroupID)
			}),
		define("list_connections", "List the connections in a process group.", readEffect,
			func(ctx context.Context, a processGroupArgs) (any, error) {
				return c.ListConnections(ctx, a.ProcessGroupID)
			}),
		define("list_input_ports", "List the input ports in a process group.", readEffect,
			func(ctx context.Context, a processGroupArgs) (any, error) {
				return c.ListPorts(ctx, nifi.InputPort, a.ProcessGroupID)
			}),
		define("list_output_ports", "List the output ports in a process group.", readEffect,
			func(ctx context.Context, a processGroupArgs) (any, error) {
				return c.ListPorts(ctx, nifi.OutputPort, a.ProcessGroupID)
			}),
		define("get_bulletins", "Read the bulletin board, optionally after a bulletin ID or for one process group.", readEffect,
			func(ctx context.Context, a bulletinArgs) (any, error) {
				return c.GetBulletins(ctx, nifi.BulletinQuery{After: a.After, GroupID: a.ProcessGroupID, Limit: a.Limit})
			}),
		define("list_parameter_contexts", "List all parameter contexts.", readEffect,
			func(ctx context.Context, _ noArgs) (any, error) {
				return c.ListParameterContexts(ctx)
			}),
		define("get_parameter_context_details", "Get a parameter context with its parameters. Sensitive values are redacted.", readEffect,
			func(ctx context.Context, a parameterContextArgs) (any, error) {
				return c.GetParameterContext(ctx, a.ParameterContextID)
			}),
		define("get_controller_services", "List controller services of a process group or of the controller.", readEffect,
			func(ctx context.Context, a serviceListArgs) (any, error) {
				return c.ListControllerServices(ctx, a.ProcessGroupID)
			}),
		define("get_controller_service_details", "Get a controller service entity.", readEffect,
			func(ctx context.Context, a serviceArgs) (any, error) {
				return c.GetControllerService(ctx, a.ServiceID)
			}),
		define("find_controller_services_by_type", "Find controller services whose type matches.", readEffect,
			func(ctx context.Context, a serviceTypeArgs) (any, error) {
				refs, err := c.FindControllerServicesByType(ctx, a.ProcessGroupID, a.Type)
				if err != nil {
					return nil, err
				}
				return map[string]any{"services": refs}, nil
			}),
		define("get_processor_types", "List the processor types available on the engine.", readEffect,
			func(ctx context.Context, _ noArgs) (any, error) {
				return c.GetProcessorTypes(ctx)
			}),
		define("search_flow", "Search the whole flow for components matching a term.", readEffect,
			func(ctx context.Context, a searchArgs) (any, error) {
				return c.SearchFlow(ctx, a.Query)
			}),
		define("get_connection_details", "Get a connection entity including its queue snapshot.", readEffect,
			func(ctx context.Context, a connectionArgs) (any, error) {
				return c.GetConnection(ctx, a.ConnectionID)
			}),
		define("get_processor_details", "Get a processor entity including its configuration.", readEffect,
			func(ctx context.Context, a processorArgs) (any, error) {
				return c.GetProcessor(ctx, a.ProcessorID)
			}),
		define("get_processor_state", "Get the run state of a processor.", readEffect,
			func(ctx context.Context, a processorArgs) (any, error) {
				state, err := c.GetProcessorState(ctx, a.ProcessorID)
				if err != nil {
					return nil, err
				}
				return map[string]any{"processor_id": a.ProcessorID, "state": state}, nil
			}),
		define("check_connection_queue", "Report how many FlowFiles and bytes are queued on a connection.", readEffect,
			func(ctx context.Context, a connectionArgs) (any, error) {
				q, err := c.GetConnectionQueue(ctx, a.ConnectionID)
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"connection_id":   a.ConnectionID,
					"flowFilesQueued": q.FlowFilesQueued,
					"bytesQueued":     q.BytesQueued,
					"empty":           q.Empty(),
				}, nil
			}),
		define("get_flow_summary", "Summarize component counts, processor states and queued data of a process group.", readEffect,
			func(ctx context.Context, a optionalGroupArgs) (any, error) {
				return c.GetProcessGroupSummary(ctx, a.group())
			}),
		define("get_flow_health_status", "Assess the health of a process group from invalid components, back pressure and bulletins.", readEffect,
			func(ctx context.Context, a optionalGroupArgs) (any, error) {
				return c.GetFlowHealth(ctx, a.group())
			}),
	}
}
