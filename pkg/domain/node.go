package domain

// NodeID identifies one of the fixed nodes of the conversation graph.
type NodeID string

const (
	// NodeEntry is the routing decision point. It does not mutate state.
	NodeEntry NodeID = "entry"
	// NodeTool runs a deterministic computation and writes the result to scratch.
	NodeTool NodeID = "tool"
	// NodeRespond invokes the language model and appends its reply.
	NodeRespond NodeID = "respond"
	// NodeTerminal ends the execution; the state is then committed.
	NodeTerminal NodeID = "terminal"
)

// Route is the branch selected by the router for a given user message.
type Route string

const (
	// RouteTool sends the turn through the tool node before responding.
	RouteTool Route = "tool"
	// RouteRespond goes straight to the responder.
	RouteRespond Route = "respond"
)

// ToolFallback is the tool result recorded when a computation cannot be carried out.
const ToolFallback = "could not compute"
