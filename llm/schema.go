package llm

// requiredFields reads the "required" list of a JSON schema, which is
// []interface{} after JSON decoding and []string when built in Go.
func requiredFields(schema map[string]interface{}) []string {
	switch req := schema["required"].(type) {
	case []string:
		return append([]string(nil), req...)
	case []interface{}:
		var out []string
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
