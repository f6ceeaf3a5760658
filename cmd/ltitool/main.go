// ltitool runs an LTI 1.3 tool: OIDC login, launch validation, JWKS and deep linking.
package main

import "github.com/mind-engage/lti1p3-tool/internal/cli"

func main() {
	cli.Execute()
}
