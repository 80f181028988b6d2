package tools

import (
	"context"

	"github.com/BaSui01/nifimcp/nifi"
)

// version 取出已校验的修订号
func version(v *int64) int64 {
	return *v
}

type positionArgs struct {
	PositionX float64 `json:"position_x,omitempty" desc:"Canvas X coordinate"`
	PositionY float64 `json:"position_y,omitempty" desc:"Canvas Y coordinate"`
}

func (a positionArgs) position() nifi.Position {
	return nifi.Position{X: a.PositionX, Y: a.PositionY}
}

type processorRevisionArgs struct {
	ProcessorID string `json:"processor_id" validate:"required" desc:"Processor ID"`
	Version     *int64 `json:"version" validate:"required,min=0" desc:"Current revision version of the component"`
}

type createProcessorArgs struct {
	ProcessGroupID string `json:"process_group_id" validate:"required" desc:"Parent process group ID"`
	Type           string `json:"type" validate:"required" desc:"Fully qualified processor type"`
	Name           string `json:"name" validate:"required" desc:"Processor name"`
	positionArgs
}

type updateProcessorArgs struct {
	ProcessorID string `json:"processor_id" validate:"required" desc:"Processor ID"`
	Version     *int64 `json:"version" validate:"required,min=0" desc:"Current revision version of the component"`
	nifi.ProcessorConfigUpdate
}

type createConnectionArgs struct {
	ProcessGroupID     string   `json:"process_group_id" validate:"required" desc:"Process group that owns the connection"`
	SourceID           string   `json:"source_id" validate:"required" desc:"Source component ID"`
	SourceType         string   `json:"source_type" validate:"required,oneof=PROCESSOR INPUT_PORT OUTPUT_PORT FUNNEL REMOTE_INPUT_PORT REMOTE_OUTPUT_PORT" desc:"Source component type"`
	SourceGroupID      string   `json:"source_group_id,omitempty" desc:"Group of the source; defaults to process_group_id"`
	DestinationID      string   `json:"destination_id" validate:"required" desc:"Destination component ID"`
	DestinationType    string   `json:"destination_type" validate:"required,oneof=PROCESSOR INPUT_PORT OUTPUT_PORT FUNNEL REMOTE_INPUT_PORT REMOTE_OUTPUT_PORT" desc:"Destination component type"`
	DestinationGroupID string   `json:"destination_group_id,omitempty" desc:"Group of the destination; defaults to process_group_id"`
	Relationships      []string `json:"relationships,omitempty" desc:"Relationships routed over the connection"`
	Name               string   `json:"name,omitempty" desc:"Connection name"`
}

type connectionRevisionArgs struct {
	ConnectionID string `json:"connection_id" validate:"required" desc:"Connection ID"`
	Version      *int64 `json:"version" validate:"required,min=0" desc:"Current revision version of the component"`
}

type createServiceArgs struct {
	ProcessGroupID string `json:"process_group_id" validate:"required" desc:"Process group that owns the service"`
	Type           string `json:"type" validate:"required" desc:"Fully qualified controller service type"`
	Name           string `json:"name" validate:"required" desc:"Controller service name"`
}

type serviceRevisionArgs struct {
	ServiceID string `json:"service_id" validate:"required" desc:"Controller service ID"`
	Version   *int64 `json:"version" validate:"required,min=0" desc:"Current revision version of the component"`
}

type updateServicePropertiesArgs struct {
	ServiceID  string                           `json:"service_id" validate:"required" desc:"Controller service ID"`
	Version    *int64                           `json:"version" validate:"required,min=0" desc:"Current revision version of the component"`
	Properties map[string]nifi.Optional[string] `json:"properties" validate:"required,min=1" desc:"Properties to set; null removes a property"`
}

type createGroupArgs struct {
	ParentID        string                `json:"parent_id" validate:"required" desc:"Parent process group ID"`
	Name            string                `json:"name" validate:"required" desc:"Process group name"`
	ExecutionEngine nifi.Optional[string] `json:"execution_engine" desc:"STANDARD or STATELESS; NiFi 2.x only"`
	positionArgs
}

type groupRevisionArgs struct {
	ProcessGroupID string `json:"process_group_id" validate:"required" desc:"Process group ID"`
	Version        *int64 `json:"version" validate:"required,min=0" desc:"Current revision version of the component"`
}

type renameGroupArgs struct {
	ProcessGroupID string `json:"process_group_id" validate:"required" desc:"Process group ID"`
	Version        *int64 `json:"version" validate:"required,min=0" desc:"Current revision version of the component"`
	Name           string `json:"name" validate:"required" desc:"New name"`
}

type applyContextArgs struct {
	ProcessGroupID     string `json:"process_group_id" validate:"required" desc:"Process group ID"`
	Version            *int64 `json:"version" validate:"required,min=0" desc:"Current revision version of the component"`
	ParameterContextID string `json:"parameter_context_id" desc:"Parameter context to bind; empty detaches the current one"`
}

type createPortArgs struct {
	ProcessGroupID string `json:"process_group_id" validate:"required" desc:"Parent process group ID"`
	Name           string `json:"name" validate:"required" desc:"Port name"`
	positionArgs
}

type portRevisionArgs struct {
	PortID  string `json:"port_id" validate:"required" desc:"Port ID"`
	Version *int64 `json:"version" validate:"required,min=0" desc:"Current revision version of the component"`
}

type updatePortArgs struct {
	PortID  string `json:"port_id" validate:"required" desc:"Port ID"`
	Version *int64 `json:"version" validate:"required,min=0" desc:"Current revision version of the component"`
	nifi.PortUpdate
}

type createContextArgs struct {
	Name        string           `json:"name" validate:"required" desc:"Parameter context name"`
	Description string           `json:"description,omitempty" desc:"Parameter context description"`
	Parameters  []nifi.Parameter `json:"parameters,omitempty" validate:"dive" desc:"Initial parameters"`
}

type updateContextArgs struct {
	ParameterContextID string `json:"parameter_context_id" validate:"required" desc:"Parameter context ID"`
	Version            *int64 `json:"version" validate:"required,min=0" desc:"Current revision version of the component"`
	nifi.ParameterContextUpdate
}

type contextRevisionArgs struct {
	ParameterContextID string `json:"parameter_context_id" validate:"required" desc:"Parameter context ID"`
	Version            *int64 `json:"version" validate:"required,min=0" desc:"Current revision version of the component"`
}

// writeTools 变更类工具，只读闸门开启时不会注册
func writeTools(c *nifi.Client) []ToolSpec {
	specs := []ToolSpec{
		define("start_processor", "Start a processor.", writeEffect,
			func(ctx context.Context, a processorRevisionArgs) (any, error) {
				return c.StartProcessor(ctx, a.ProcessorID, version(a.Version))
			}),
		define("stop_processor", "Stop a processor.", writeEffect,
			func(ctx context.Context, a processorRevisionArgs) (any, error) {
				return c.StopProcessor(ctx, a.ProcessorID, version(a.Version))
			}),
		define("create_processor", "Create a processor in a process group.", writeEffect,
			func(ctx context.Context, a createProcessorArgs) (any, error) {
				return c.CreateProcessor(ctx, a.ProcessGroupID, a.Type, a.Name, a.position())
			}),
		define("update_processor_config", "Partially update a processor. Only the fields present are sent; null clears a field.", writeEffect,
			func(ctx context.Context, a updateProcessorArgs) (any, error) {
				return c.UpdateProcessor(ctx, a.ProcessorID, version(a.Version), a.ProcessorConfigUpdate)
			}),
		define("delete_processor", "Delete a processor.", destroyEffect,
			func(ctx context.Context, a processorRevisionArgs) (any, error) {
				return c.DeleteProcessor(ctx, a.ProcessorID, version(a.Version))
			}),
		define("terminate_processor", "Terminate the active threads of a stopped processor.", destroyEffect,
			func(ctx context.Context, a processorArgs) (any, error) {
				return c.TerminateProcessor(ctx, a.ProcessorID)
			}),

		define("create_connection", "Connect two components.", writeEffect,
			func(ctx context.Context, a createConnectionArgs) (any, error) {
				return c.CreateConnection(ctx, a.ProcessGroupID, nifi.ConnectionSpec{
					Source:        nifi.Endpoint{ID: a.SourceID, Type: a.SourceType, GroupID: a.SourceGroupID},
					Destination:   nifi.Endpoint{ID: a.DestinationID, Type: a.DestinationType, GroupID: a.DestinationGroupID},
					Relationships: a.Relationships,
					Name:          a.Name,
				})
			}),
		define("delete_connection", "Delete a connection. The queue must be empty.", destroyEffect,
			func(ctx context.Context, a connectionRevisionArgs) (any, error) {
				return c.DeleteConnection(ctx, a.ConnectionID, version(a.Version))
			}),
		define("empty_connection_queue", "Drop every FlowFile queued on a connection.", destroyEffect,
			func(ctx context.Context, a connectionArgs) (any, error) {
				return c.DrainConnection(ctx, a.ConnectionID)
			}),

		define("create_controller_service", "Create a controller service in a process group.", writeEffect,
			func(ctx context.Context, a createServiceArgs) (any, error) {
				return c.CreateControllerService(ctx, a.ProcessGroupID, a.Type, a.Name)
			}),
		define("update_controller_service_properties", "Set or remove controller service properties.", writeEffect,
			func(ctx context.Context, a updateServicePropertiesArgs) (any, error) {
				return c.UpdateControllerService(ctx, a.ServiceID, version(a.Version), nifi.ControllerServiceUpdate{Properties: a.Properties})
			}),
		define("delete_controller_service", "Delete a controller service.", destroyEffect,
			func(ctx context.Context, a serviceRevisionArgs) (any, error) {
				return c.DeleteControllerService(ctx, a.ServiceID, version(a.Version))
			}),
		define("enable_controller_service", "Enable a controller service.", writeEffect,
			func(ctx context.Context, a serviceRevisionArgs) (any, error) {
				return c.EnableControllerService(ctx, a.ServiceID, version(a.Version))
			}),
		define("disable_controller_service", "Disable a controller service.", writeEffect,
			func(ctx context.Context, a serviceRevisionArgs) (any, error) {
				return c.DisableControllerService(ctx, a.ServiceID, version(a.Version))
			}),
		define("enable_all_controller_services_in_group", "Enable every controller service in a process group.", writeEffect,
			func(ctx context.Context, a processGroupArgs) (any, error) {
				return c.EnableAllControllerServices(ctx, a.ProcessGroupID)
			}),

		define("create_process_group", "Create a child process group.", writeEffect,
			func(ctx context.Context, a createGroupArgs) (any, error) {
				return c.CreateProcessGroup(ctx, a.ParentID, a.Name, a.position(), a.ExecutionEngine)
			}),
		define("update_process_group_name", "Rename a process group.", writeEffect,
			func(ctx context.Context, a renameGroupArgs) (any, error) {
				return c.UpdateProcessGroup(ctx, a.ProcessGroupID, version(a.Version), nifi.ProcessGroupUpdate{Name: nifi.Some(a.Name)})
			}),
		define("delete_process_group", "Delete a process group.", destroyEffect,
			func(ctx context.Context, a groupRevisionArgs) (any, error) {
				return c.DeleteProcessGroup(ctx, a.ProcessGroupID, version(a.Version))
			}),
		define("apply_parameter_context_to_process_group", "Bind a parameter context to a process group, or detach it.", writeEffect,
			func(ctx context.Context, a applyContextArgs) (any, error) {
				return c.ApplyParameterContext(ctx, a.ProcessGroupID, version(a.Version), a.ParameterContextID)
			}),
		define("start_all_processors_in_group", "Start every processor in a process group.", writeEffect,
			func(ctx context.Context, a processGroupArgs) (any, error) {
				return c.SetProcessGroupRunState(ctx, a.ProcessGroupID, nifi.StateRunning)
			}),
		define("stop_all_processors_in_group", "Stop every processor in a process group.", writeEffect,
			func(ctx context.Context, a processGroupArgs) (any, error) {
				return c.SetProcessGroupRunState(ctx, a.ProcessGroupID, nifi.StateStopped)
			}),

		define("create_parameter_context", "Create a parameter context.", writeEffect,
			func(ctx context.Context, a createContextArgs) (any, error) {
				return c.CreateParameterContext(ctx, a.Name, a.Description, a.Parameters)
			}),
		define("update_parameter_context", "Merge parameters into a parameter context by name and remove the ones listed.", writeEffect,
			func(ctx context.Context, a updateContextArgs) (any, error) {
				return c.UpdateParameterContext(ctx, a.ParameterContextID, version(a.Version), a.ParameterContextUpdate)
			}),
		define("delete_parameter_context", "Delete a parameter context.", destroyEffect,
			func(ctx context.Context, a contextRevisionArgs) (any, error) {
				return c.DeleteParameterContext(ctx, a.ParameterContextID, version(a.Version))
			}),
	}
	specs = append(specs, portTools(c, nifi.InputPort)...)
	return append(specs, portTools(c, nifi.OutputPort)...)
}

// portTools 输入与输出端口共用一组实现
func portTools(c *nifi.Client, kind nifi.PortKind) []ToolSpec {
	k := string(kind)
	return []ToolSpec{
		define("create_"+k+"_port", "Create an "+k+" port in a process group.", writeEffect,
			func(ctx context.Context, a createPortArgs) (any, error) {
				return c.CreatePort(ctx, kind, a.ProcessGroupID, a.Name, a.position())
			}),
		define("update_"+k+"_port", "Partially update an "+k+" port.", writeEffect,
			func(ctx context.Context, a updatePortArgs) (any, error) {
				return c.UpdatePort(ctx, kind, a.PortID, version(a.Version), a.PortUpdate)
			}),
		define("delete_"+k+"_port", "Delete an "+k+" port.", destroyEffect,
			func(ctx context.Context, a portRevisionArgs) (any, error) {
				return c.DeletePort(ctx, kind, a.PortID, version(a.Version))
			}),
		define("start_"+k+"_port", "Start an "+k+" port.", writeEffect,
			func(ctx context.Context, a portRevisionArgs) (any, error) {
				return c.StartPort(ctx, kind, a.PortID, version(a.Version))
			}),
		define("stop_"+k+"_port", "Stop an "+k+" port.", writeEffect,
			func(ctx context.Context, a portRevisionArgs) (any, error) {
				return c.StopPort(ctx, kind, a.PortID, version(a.Version))
			}),
	}
}
