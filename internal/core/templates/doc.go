// Package templates compiles the proxy configuration and Dockerfile
// templates shipped with cerberus.
//
// The templates are embedded in the binary and parsed once by New. The
// resulting Registry is read-only and safe to share between goroutines.
//
// # Usage
//
//	reg, err := templates.New()
//	if err != nil {
//	    return err
//	}
//	out, err := reg.Render(templates.Caddyfile, data)
package templates
