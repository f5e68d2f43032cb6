// pip-compile pins requirements from requirements.in-style inputs into a
// deterministic requirements.txt.
package main

import "github.com/jammie19/pip-tools/cmd/pip-compile/cmd"

func main() {
	cmd.Execute()
}
