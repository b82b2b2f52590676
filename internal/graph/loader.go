package graph

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse is the single pure entry point: source text in, a validated
// Composition or a non-empty list of ValidationErrors out. No I/O happens
// here; callers read the file themselves and pass the bytes plus a path
// hint used only to infer the format.
func Parse(source []byte, pathHint string) (*Composition, []ValidationError) {
	raw, perr := decodeDocument(source, pathHint)
	if perr != nil {
		return nil, []ValidationError{newErr("$", "document", "%v", perr)}
	}

	comp, errs := build(raw)
	if len(errs) > 0 {
		return nil, errs
	}

	if errs := validate(comp); len(errs) > 0 {
		return nil, errs
	}

	return comp, nil
}

func decodeDocument(source []byte, pathHint string) (map[string]any, error) {
	format := detectFormat(source, pathHint)

	if format == "yaml" {
		var raw map[string]any
		if err := yaml.Unmarshal(source, &raw); err != nil {
			return nil, err
		}
		return normalizeYAML(raw), nil
	}

	stripped := stripJSONComments(source)
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(stripped))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return normalizeNumbers(raw), nil
}

func detectFormat(source []byte, pathHint string) string {
	ext := strings.ToLower(filepath.Ext(pathHint))
	switch ext {
	case ".yaml", ".yml":
		return "yaml"
	case ".json", ".jsonc":
		return "json"
	}

	trimmed := bytes.TrimSpace(source)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return "json"
	}
	return "yaml"
}

// normalizeYAML recursively converts map[string]interface{} produced by
// yaml.v3 (which already uses string keys) into plain map[string]any/[]any,
// matching the shape produced by the JSON decoder so downstream field()
// lookups are format-agnostic.
func normalizeYAML(v any) map[string]any {
	out := asMap(normalizeYAMLValue(v))
	return out
}

func normalizeYAMLValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAMLValue(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if ks, ok := k.(string); ok {
				out[ks] = normalizeYAMLValue(val)
			}
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeYAMLValue(e)
		}
		return out
	default:
		return v
	}
}

// normalizeNumbers converts json.Number leaves (from UseNumber) to float64
// so fieldInt/toStringAny see the same numeric types regardless of format.
func normalizeNumbers(v any) map[string]any {
	return asMap(normalizeNumbersValue(v))
}

func normalizeNumbersValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeNumbersValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeNumbersValue(e)
		}
		return out
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return 0.0
	default:
		return v
	}
}

// build decodes the generic document into typed structures, collecting a
// diagnostic for every malformed entry instead of stopping at the first.
func build(raw map[string]any) (*Composition, []ValidationError) {
	var errs []ValidationError
	comp := &Composition{
		Models:    map[string]Model{},
		Functions: map[string]Function{},
		Secrets:   map[string]SecretSource{},
	}

	for name, mv := range fieldMap(raw, "models") {
		mm := asMap(mv)
		if mm == nil {
			errs = append(errs, newErr("$.models."+name, "models", "expected an object"))
			continue
		}
		comp.Models[name] = Model{
			Name:      name,
			Type:      ModelType(orDefault(fieldString(mm, "type"), string(ModelExternal))),
			Interface: orDefault(fieldString(mm, "interface"), "chat-completion"),
			URL:       fieldString(mm, "url"),
			APIKey:    fieldString(mm, "api-key"),
		}
	}

	archRaw, _ := field(raw, "architecture")
	if archList, ok := archRaw.([]any); ok {
		for i, nv := range archList {
			nm := asMap(nv)
			if nm == nil {
				errs = append(errs, newErr("$.architecture["+strconv.Itoa(i)+"]", "architecture", "expected an object"))
				continue
			}
			node, nerrs := buildNode(nm, i)
			errs = append(errs, nerrs...)
			comp.Architecture = append(comp.Architecture, node)
		}
	}

	for name, fv := range fieldMap(raw, "functions") {
		fm := asMap(fv)
		if fm == nil {
			errs = append(errs, newErr("$.functions."+name, "functions", "expected an object"))
			continue
		}
		fn, ferrs := buildFunction(name, fm)
		errs = append(errs, ferrs...)
		comp.Functions[name] = fn
	}

	for name, sv := range fieldMap(raw, "secrets") {
		sm := asMap(sv)
		if sm == nil {
			errs = append(errs, newErr("$.secrets."+name, "secrets", "expected an object"))
			continue
		}
		src, serrs := buildSecretSource(name, sm)
		errs = append(errs, serrs...)
		comp.Secrets[name] = src
	}

	return comp, errs
}

func buildNode(nm map[string]any, idx int) (Node, []ValidationError) {
	path := "$.architecture[" + strconv.Itoa(idx) + "]"
	var errs []ValidationError

	name := fieldString(nm, "name")
	if name == "" {
		errs = append(errs, newErr(path, "name", "required"))
	}

	layer, _ := fieldInt(nm, "layer")

	node := Node{
		Name:         name,
		Layer:        layer,
		Model:        fieldString(nm, "model"),
		Adapter:      AdapterKind(fieldString(nm, "adapter")),
		UseCase:      fieldString(nm, "use-case"),
		Context:      fieldString(nm, "context"),
		If:           fieldString(nm, "if"),
		URL:          fieldString(nm, "url"),
		OutputTo:     fieldStringSlice(nm, "output-to"),
		BindAddr:     fieldString(nm, "bind-addr"),
		ExtraOptions: fieldMap(nm, "extra-options"),
	}
	if port, ok := fieldInt(nm, "bind-port"); ok {
		node.BindPort = port
	}
	if node.ExtraOptions == nil {
		node.ExtraOptions = map[string]any{}
	}

	hooks := fieldMap(nm, "hooks")
	node.HooksPre = buildHooks(fieldSliceOfMaps(hooks, "pre"))
	node.HooksPost = buildHooks(fieldSliceOfMaps(hooks, "post"))

	return node, errs
}

func fieldSliceOfMaps(m map[string]any, name string) []map[string]any {
	if m == nil {
		return nil
	}
	v, ok := field(m, name)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, e := range list {
		if em := asMap(e); em != nil {
			out = append(out, em)
		}
	}
	return out
}

func buildHooks(list []map[string]any) []Hook {
	out := make([]Hook, 0, len(list))
	for _, hm := range list {
		out = append(out, Hook{
			Function:  fieldString(hm, "function"),
			Mode:      HookMode(fieldString(hm, "mode")),
			OnFailure: HookFailure(orDefault(fieldString(hm, "on_failure"), string(FailureContinue))),
			If:        fieldString(hm, "if"),
		})
	}
	return out
}

func buildFunction(name string, fm map[string]any) (Function, []ValidationError) {
	path := "$.functions." + name
	kind := FunctionKind(fieldString(fm, "type"))
	fn := Function{Name: name, Kind: kind}

	switch kind {
	case FunctionREST:
		fn.REST = &RESTFunction{
			Method:  orDefault(fieldString(fm, "method"), "GET"),
			URL:     fieldString(fm, "url"),
			Headers: fieldStringMap(fm, "headers"),
			Body:    fieldString(fm, "body"),
			Timeout: orDefault(fieldString(fm, "timeout"), "30s"),
			Retry:   fieldBool(fm, "retry"),
		}
		if fn.REST.URL == "" {
			return fn, []ValidationError{newErr(path, "url", "required for rest function")}
		}
	case FunctionShell:
		fn.Shell = &ShellFunction{
			Command: fieldString(fm, "command"),
			Args:    fieldStringSlice(fm, "args"),
			Env:     fieldStringMap(fm, "env"),
			Cwd:     fieldString(fm, "cwd"),
			Timeout: orDefault(fieldString(fm, "timeout"), "30s"),
		}
		if fn.Shell.Command == "" {
			return fn, []ValidationError{newErr(path, "command", "required for shell function")}
		}
	case FunctionWebSocket:
		fn.WebSocket = &WebSocketFunction{
			URL:     fieldString(fm, "url"),
			Headers: fieldStringMap(fm, "headers"),
			Message: fieldString(fm, "message"),
			Timeout: orDefault(fieldString(fm, "timeout"), "30s"),
		}
		if fn.WebSocket.URL == "" {
			return fn, []ValidationError{newErr(path, "url", "required for websocket function")}
		}
	case FunctionGRPC:
		fn.GRPC = &GRPCFunction{
			Address: fieldString(fm, "address"),
			Service: fieldString(fm, "service"),
			Method:  fieldString(fm, "method"),
			Request: fieldString(fm, "request"),
			Timeout: orDefault(fieldString(fm, "timeout"), "30s"),
		}
		if fn.GRPC.Address == "" || fn.GRPC.Service == "" || fn.GRPC.Method == "" {
			return fn, []ValidationError{newErr(path, "address/service/method", "all required for grpc function")}
		}
	default:
		return fn, []ValidationError{newErr(path, "type", "unknown function type %q", kind)}
	}

	return fn, nil
}

func buildSecretSource(name string, sm map[string]any) (SecretSource, []ValidationError) {
	path := "$.secrets." + name
	kind := SecretSourceKind(fieldString(sm, "type"))
	src := SecretSource{Name: name, Kind: kind}

	switch kind {
	case SecretEnvFile:
		src.EnvFile = &EnvFileSource{
			Path:      fieldString(sm, "path"),
			Variables: fieldStringSlice(sm, "variables"),
		}
		if src.EnvFile.Path == "" {
			return src, []ValidationError{newErr(path, "path", "required for env-file secret source")}
		}
	case SecretEnv:
		src.Env = &EnvSource{Variable: fieldString(sm, "variable")}
		if src.Env.Variable == "" {
			return src, []ValidationError{newErr(path, "variable", "required for env secret source")}
		}
	case SecretVault:
		src.Vault = &VaultSource{
			Address:   fieldString(sm, "address"),
			Path:      fieldString(sm, "path"),
			Variables: fieldStringSlice(sm, "variables"),
			TokenEnv:  orDefault(fieldString(sm, "token-env"), "VAULT_TOKEN"),
		}
		if src.Vault.Address == "" || src.Vault.Path == "" {
			return src, []ValidationError{newErr(path, "address/path", "both required for vault secret source")}
		}
	default:
		return src, []ValidationError{newErr(path, "type", "unknown secret source type %q", kind)}
	}

	return src, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

