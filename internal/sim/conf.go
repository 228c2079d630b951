package sim

// Conf maps come straight from YAML, so numeric values may arrive as
// int or float64 depending on how they were written.

func confInt(conf map[string]any, key string, def int) int {
	v, ok := conf[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

func confFloat(conf map[string]any, key string, def float64) float64 {
	v, ok := conf[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return def
	}
}

func confStrings(conf map[string]any, key string) []string {
	v, ok := conf[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
