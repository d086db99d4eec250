package config

// StripJSONComments removes // line comments and /* */ block comments from
// JSON text, leaving string literals untouched. Line structure is preserved
// so decoder offsets still point at the right line.
func StripJSONComments(in []byte) []byte {
	out := make([]byte, 0, len(in))
	const (
		code = iota
		str
		line
		block
	)
	state := code
	for i := 0; i < len(in); i++ {
		c := in[i]
		switch state {
		case str:
			out = append(out, c)
			if c == '\\' && i+1 < len(in) {
				i++
				out = append(out, in[i])
			} else if c == '"' {
				state = code
			}
		case line:
			if c == '\n' {
				out = append(out, c)
				state = code
			}
		case block:
			if c == '\n' {
				out = append(out, c)
			} else if c == '*' && i+1 < len(in) && in[i+1] == '/' {
				i++
				state = code
			}
		default:
			switch {
			case c == '"':
				out = append(out, c)
				state = str
			case c == '/' && i+1 < len(in) && in[i+1] == '/':
				i++
				state = line
			case c == '/' && i+1 < len(in) && in[i+1] == '*':
				i++
				state = block
			default:
				out = append(out, c)
			}
		}
	}
	return out
}
