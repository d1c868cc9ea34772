package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/nuxlab/internal/reconcile"
)

func TestPrintResultText(t *testing.T) {
	running := &reconcile.Result{
		Changed: true,
		Action:  reconcile.ActionCreate,
		Metadata: reconcile.Metadata{
			ID:       "lab0001",
			Name:     "demo",
			Address:  "198.51.100.1",
			Password: "pw-demo",
			Template: "alpha",
			Status:   "started",
			Endpoints: []reconcile.Endpoint{
				{Name: "ssh", Protocol: "tcp", Host: "198.51.100.1", Port: 22},
			},
		},
	}

	tests := []struct {
		name string
		res  *reconcile.Result
		want string
	}{
		{
			name: "absent lab prints only the verdict",
			res:  &reconcile.Result{Action: reconcile.ActionNone},
			want: "ok: action=none\n",
		},
		{
			name: "created lab prints its metadata",
			res:  running,
			want: "changed: action=create\n" +
				"Lab:      demo (lab0001)\n" +
				"Status:   started\n" +
				"Template: alpha\n" +
				"Address:  198.51.100.1\n" +
				"Password: pw-demo\n" +
				"  ssh        tcp://198.51.100.1:22\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, printResult(&buf, tt.res, "text"))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestPrintResultJSON(t *testing.T) {
	res := &reconcile.Result{
		Changed: true,
		Action:  reconcile.ActionDelete,
	}

	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, res, "json"))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, true, out["changed"])
	assert.Equal(t, "delete", out["action"])
	assert.Equal(t, "", out["lab_id"])
	assert.Contains(t, buf.String(), "\n  \"changed\"", "output is indented")
}
