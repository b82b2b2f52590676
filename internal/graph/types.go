// Package graph holds the declarative composition data model: models,
// the layered node architecture, named functions, and secret sources.
// A Composition is immutable once parsed and validated.
package graph

// ModelType is the Model.type tag.
type ModelType string

const (
	ModelExternal   ModelType = "external"
	ModelSpawnable  ModelType = "spawnable"
)

// Model describes one chat-completion endpoint.
type Model struct {
	Name      string
	Type      ModelType
	Interface string // always "chat-completion" today
	URL       string
	APIKey    string // may embed a $secrets.name.var reference, resolved at load
}

// AdapterKind is the Node.adapter tag.
type AdapterKind string

const (
	AdapterChatCompletion AdapterKind = "chat-completion"
	AdapterOutput         AdapterKind = "output"
	AdapterWebSocket      AdapterKind = "websocket"
)

// HookMode is the Hook.mode tag.
type HookMode string

const (
	HookObserve   HookMode = "observe"
	HookTransform HookMode = "transform"
)

// HookFailure is the Hook.on_failure tag.
type HookFailure string

const (
	FailureContinue HookFailure = "continue"
	FailureAbort    HookFailure = "abort"
)

// Hook is an external-function invocation attached pre/post a node.
type Hook struct {
	Function  string
	Mode      HookMode
	OnFailure HookFailure
	If        string
}

// Node is one vertex of the architecture.
type Node struct {
	Name    string
	Layer   int
	Model   string // reference into Composition.Models, empty for output nodes
	Adapter AdapterKind
	UseCase string
	Context string
	If      string
	URL     string // required when Adapter == AdapterWebSocket

	// OutputTo holds raw targets: each entry is either a decimal layer
	// number or a node name, resolved lazily by the router.
	OutputTo []string

	HooksPre  []Hook
	HooksPost []Hook

	BindAddr string
	BindPort int

	ExtraOptions map[string]any
}

// ModelOverride returns extra-options.model_override, if set.
func (n Node) ModelOverride() (string, bool) {
	v, ok := n.ExtraOptions["model_override"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// UseHeaderKeys returns extra-options.UseHeaderKeys as a string slice.
func (n Node) UseHeaderKeys() []string {
	v, ok := n.ExtraOptions["UseHeaderKeys"]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// FunctionKind is the Function tagged-union discriminator.
type FunctionKind string

const (
	FunctionREST       FunctionKind = "rest"
	FunctionShell      FunctionKind = "shell"
	FunctionWebSocket  FunctionKind = "websocket"
	FunctionGRPC       FunctionKind = "grpc"
)

// Function is a named, reusable external effect.
type Function struct {
	Name string
	Kind FunctionKind

	REST      *RESTFunction
	Shell     *ShellFunction
	WebSocket *WebSocketFunction
	GRPC      *GRPCFunction
}

type RESTFunction struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string // optional template/JSON text; empty means no body
	Timeout string // duration string, e.g. "30s"
	Retry   bool
}

type ShellFunction struct {
	Command string
	Args    []string
	Env     map[string]string
	Cwd     string
	Timeout string
}

type WebSocketFunction struct {
	URL     string
	Headers map[string]string
	Message string
	Timeout string
}

type GRPCFunction struct {
	Address string
	Service string
	Method  string
	Request string // JSON text template
	Timeout string
}

// SecretSourceKind is the SecretSource tagged-union discriminator.
type SecretSourceKind string

const (
	SecretEnvFile SecretSourceKind = "env-file"
	SecretEnv     SecretSourceKind = "env"
	SecretVault   SecretSourceKind = "vault"
)

// SecretSource is a named set of secret variables loaded once at startup.
type SecretSource struct {
	Name string
	Kind SecretSourceKind

	EnvFile *EnvFileSource
	Env     *EnvSource
	Vault   *VaultSource
}

type EnvFileSource struct {
	Path      string
	Variables []string // allow-list, empty means all
}

type EnvSource struct {
	Variable string
}

type VaultSource struct {
	Address   string
	Path      string
	Variables []string // allow-list, empty means all
	TokenEnv  string    // defaults to VAULT_TOKEN
}

// Composition is the immutable, validated graph root.
type Composition struct {
	Models       map[string]Model
	Architecture []Node
	Functions    map[string]Function
	Secrets      map[string]SecretSource
}

// NodeByName returns the node with the given name, if any.
func (c *Composition) NodeByName(name string) (Node, bool) {
	for _, n := range c.Architecture {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// NodesAtLayer returns every node at the given layer, in architecture order.
func (c *Composition) NodesAtLayer(layer int) []Node {
	var out []Node
	for _, n := range c.Architecture {
		if n.Layer == layer {
			out = append(out, n)
		}
	}
	return out
}

// EntryNode returns the unique adapter=chat-completion node at layer 0.
func (c *Composition) EntryNode() (Node, bool) {
	for _, n := range c.Architecture {
		if n.Layer == 0 && n.Adapter == AdapterChatCompletion {
			return n, true
		}
	}
	return Node{}, false
}
