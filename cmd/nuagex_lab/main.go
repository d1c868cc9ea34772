// Command nuagex_lab is an Ansible binary module that ensures a NuageX lab is
// present or absent.
//
//	- name: Ensure training lab
//	  nuagex_lab:
//	    name: training
//	    state: present
package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/michaelbrown/nuxlab/internal/module"
)

func main() {
	if len(os.Args) < 2 {
		json.NewEncoder(os.Stdout).Encode(map[string]any{
			"failed": true,
			"msg":    "no argument file provided",
		})
		os.Exit(1)
	}
	os.Exit(module.Default().Main(context.Background(), os.Args[1], os.Stdout))
}
