package nuagex_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/nuxlab/internal/nuagex"
	"github.com/michaelbrown/nuxlab/internal/nuagex/nuagextest"
)

func newClient(srv *nuagextest.Server, user, pass string) *nuagex.Client {
	return nuagex.New(nuagex.Config{
		BaseURL:     srv.APIURL(),
		Credentials: nuagex.Credentials{Username: user, Password: pass},
	})
}

func TestLoginCachesToken(t *testing.T) {
	srv := nuagextest.NewServer()
	defer srv.Close()

	c := newClient(srv, nuagextest.Username, nuagextest.Password)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx))
	_, err := c.ListLabs(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Logins)
}

func TestExpiredTokenLogsInAgain(t *testing.T) {
	srv := nuagextest.NewServer(nuagex.Template{ID: "t1", Name: "base"})
	defer srv.Close()

	c := newClient(srv, nuagextest.Username, nuagextest.Password)
	ctx := context.Background()
	_, err := c.ListTemplates(ctx)
	require.NoError(t, err)

	srv.ExpireToken()
	templates, err := c.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Len(t, templates, 1)
	assert.Equal(t, 2, srv.Logins)

	// The fresh token is cached again.
	_, err = c.ListLabs(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Logins)
}

func TestUnauthorizedAfterReloginSurfaces(t *testing.T) {
	srv := nuagextest.NewServer()
	defer srv.Close()

	c := newClient(srv, nuagextest.Username, nuagextest.Password)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx))

	srv.RejectTokens = true
	_, err := c.ListLabs(ctx, "demo")
	var apiErr *nuagex.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, 2, srv.Logins, "only one retry")
}

func TestLoginRejected(t *testing.T) {
	srv := nuagextest.NewServer()
	defer srv.Close()

	err := newClient(srv, "alice", "wrong").Login(context.Background())
	var authErr *nuagex.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "Invalid NuageX credentials (username=alice, password=*****)", err.Error())
}

func TestLoginMissingFields(t *testing.T) {
	srv := nuagextest.NewServer()
	defer srv.Close()

	tests := []struct {
		name, user, pass, want string
	}{
		{"no username", "", "pw", "Missing username in nuagex_auth variable."},
		{"no password", "alice", "", "Missing password in nuagex_auth variable."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newClient(srv, tt.user, tt.pass).Login(context.Background())
			var authErr *nuagex.AuthError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, tt.want, err.Error())
		})
	}
	assert.Zero(t, srv.Logins, "missing credentials must not reach the API")
}

func TestCreateWaitDelete(t *testing.T) {
	srv := nuagextest.NewServer(nuagex.Template{ID: "t1", Name: "base"})
	defer srv.Close()
	srv.StartAfter = 2
	srv.GoneAfter = 1

	c := newClient(srv, nuagextest.Username, nuagextest.Password)
	ctx := context.Background()

	created, err := c.CreateLab(ctx, "demo", "t1")
	require.NoError(t, err)
	assert.False(t, created.IsRunning())
	assert.True(t, created.IsTransitional())

	var attempts int
	running, err := c.WaitRunning(ctx, created,
		nuagex.WithPollInterval(time.Millisecond),
		nuagex.WithOnPoll(func(attempt int, _ *nuagex.Lab) { attempts = attempt }),
	)
	require.NoError(t, err)
	assert.True(t, running.IsRunning())
	assert.Equal(t, created.ID, running.ID)
	assert.Equal(t, 2, attempts)

	require.NoError(t, c.DeleteLab(ctx, running.ID))
	require.NoError(t, c.WaitGone(ctx, running, nuagex.WithPollInterval(time.Millisecond)))
	assert.Empty(t, srv.Labs())
}

func TestWaitRunningTimeout(t *testing.T) {
	srv := nuagextest.NewServer(nuagex.Template{ID: "t1", Name: "base"})
	defer srv.Close()
	srv.StartAfter = 10

	c := newClient(srv, nuagextest.Username, nuagextest.Password)
	ctx := context.Background()
	created, err := c.CreateLab(ctx, "slow", "t1")
	require.NoError(t, err)

	_, err = c.WaitRunning(ctx, created, nuagex.WithAttempts(3), nuagex.WithPollInterval(time.Millisecond))
	assert.True(t, errors.Is(err, nuagex.ErrWaitTimeout))
}

func TestWaitRunningCancelled(t *testing.T) {
	srv := nuagextest.NewServer(nuagex.Template{ID: "t1", Name: "base"})
	defer srv.Close()
	srv.StartAfter = 100

	c := newClient(srv, nuagextest.Username, nuagextest.Password)
	created, err := c.CreateLab(context.Background(), "slow", "t1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.WaitRunning(ctx, created, nuagex.WithAttempts(0), nuagex.WithPollInterval(5*time.Millisecond))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAPIErrorSurfaced(t *testing.T) {
	srv := nuagextest.NewServer()
	defer srv.Close()
	srv.FailLabs = http.StatusServiceUnavailable

	_, err := newClient(srv, nuagextest.Username, nuagextest.Password).ListLabs(context.Background(), "x")
	var apiErr *nuagex.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "HTTP error 503 labs unavailable")
}

func TestDeleteMissingLabIsNotFound(t *testing.T) {
	srv := nuagextest.NewServer()
	defer srv.Close()

	err := newClient(srv, nuagextest.Username, nuagextest.Password).DeleteLab(context.Background(), "nope")
	assert.True(t, nuagex.IsNotFound(err))
}
