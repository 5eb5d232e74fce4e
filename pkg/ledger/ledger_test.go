package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBadDSN(t *testing.T) {
	_, err := Open("this is not a dsn")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse ledger DSN")
}

func TestOpenAndClose(t *testing.T) {
	// sql.Open does not dial, so a well-formed DSN is enough here.
	l, err := Open("dibs:secret@tcp(127.0.0.1:3306)/dibs")
	require.NoError(t, err)
	assert.NoError(t, l.Close())
}

func TestRedactDSN(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{
			name: "password redacted",
			dsn:  "dibs:sup3rsecret@tcp(127.0.0.1:3306)/dibs",
			want: "dibs:xxxxx@tcp(127.0.0.1:3306)/dibs",
		},
		{
			name: "no password",
			dsn:  "root@tcp(10.0.1.110:30306)/dibs",
			want: "root@tcp(10.0.1.110:30306)/dibs",
		},
		{
			name: "params kept",
			dsn:  "dibs:pw@tcp(db:3306)/dibs?parseTime=true",
			want: "dibs:xxxxx@tcp(db:3306)/dibs?parseTime=true",
		},
		{
			name: "invalid",
			dsn:  "not a dsn",
			want: "<invalid dsn>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RedactDSN(tt.dsn))
		})
	}
}

func TestSchemaStatement(t *testing.T) {
	assert.Contains(t, createTableSQL, "CREATE TABLE IF NOT EXISTS gpu_session")
	for _, column := range []string{"gpu_product", "gpu_count", "node_name", "reserved_at", "released_at", "release_reason"} {
		assert.Contains(t, createTableSQL, column, "schema should define %s", column)
	}
}
