package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/mikepea/gatekeeper/pkg/gatekeeper/config"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/ldap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	openldapContainerName = "gatekeeper-test-openldap"
	openldapPort          = 3389
	openldapAdminDN       = "cn=admin,dc=example,dc=org"
	openldapAdminPassword = "admin"
	openldapBaseDN        = "dc=example,dc=org"
)

const aliceLDIF = `dn: uid=alice,dc=example,dc=org
objectClass: inetOrgPerson
uid: alice
cn: Alice Liddell
givenName: Alice
sn: Liddell
mail: alice@example.org
userPassword: wonderland
`

// isDockerAvailable checks if Docker is available
func isDockerAvailable() bool {
	cmd := exec.Command("docker", "version")
	return cmd.Run() == nil
}

func openldapConfig() config.LDAPConfig {
	return config.LDAPConfig{
		Enabled:             true,
		Server:              "localhost",
		Port:                openldapPort,
		BindDN:              openldapAdminDN,
		BindPassword:        openldapAdminPassword,
		SearchBase:          openldapBaseDN,
		SearchFilter:        "(uid={username})",
		EmailAttribute:      "mail",
		FirstNameAttribute:  "givenName",
		LastNameAttribute:   "sn",
		CommonNameAttribute: "cn",
		ConflictStrategy:    config.ConflictFail,
		Timeout:             5 * time.Second,
	}
}

// startOpenLDAP starts OpenLDAP in a Docker container and seeds one user
func startOpenLDAP(t *testing.T) (cleanup func()) {
	exec.Command("docker", "rm", "-f", openldapContainerName).Run()

	t.Log("Starting OpenLDAP container...")
	cmd := exec.Command("docker", "run", "-d",
		"--name", openldapContainerName,
		"-p", "3389:389",
		"-e", "LDAP_ORGANISATION=Example",
		"-e", "LDAP_DOMAIN=example.org",
		"-e", "LDAP_ADMIN_PASSWORD="+openldapAdminPassword,
		"osixia/openldap:1.5.0",
	)
	if err := cmd.Run(); err != nil {
		t.Fatalf("Failed to start OpenLDAP: %v", err)
	}
	cleanup = func() {
		exec.Command("docker", "rm", "-f", openldapContainerName).Run()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	t.Log("Waiting for OpenLDAP to be ready...")
	dialer := ldap.NewNetworkDialer(openldapConfig())
	for {
		conn, err := dialer.Dial(ctx)
		if err == nil {
			err = conn.Bind(openldapAdminDN, openldapAdminPassword)
			conn.Close()
		}
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			cleanup()
			t.Fatalf("OpenLDAP did not become ready in time: %v", err)
		case <-time.After(time.Second):
		}
	}

	add := exec.Command("docker", "exec", "-i", openldapContainerName,
		"ldapadd", "-x", "-D", openldapAdminDN, "-w", openldapAdminPassword)
	add.Stdin = strings.NewReader(aliceLDIF)
	if out, err := add.CombinedOutput(); err != nil {
		cleanup()
		t.Fatalf("Failed to seed directory: %v: %s", err, out)
	}

	return cleanup
}

func TestOpenLDAPIntegration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST_LDAP") != "1" {
		t.Skip("Skipping OpenLDAP integration test. Set INTEGRATION_TEST_LDAP=1 to run.")
	}

	if !isDockerAvailable() {
		t.Skip("Docker not available, skipping OpenLDAP test")
	}

	cleanup := startOpenLDAP(t)
	defer cleanup()

	cfg := loadTestConfig(t)
	cfg.LDAP = openldapConfig()
	srv, _ := setupFullServer(t, cfg)

	t.Run("DirectoryLoginCreatesUser", func(t *testing.T) {
		token := login(t, srv, "alice", "wonderland")

		resp := serve(srv, "GET", "/api/v1/users/me", nil, token)
		require.Equal(t, http.StatusOK, resp.Code)

		var me map[string]any
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &me))
		assert.Equal(t, "alice", me["username"])
		assert.Equal(t, "alice@example.org", me["email"])
		assert.Equal(t, "Alice Liddell", me["full_name"])
	})

	t.Run("RepeatLoginReusesUser", func(t *testing.T) {
		login(t, srv, "alice", "wonderland")

		users, err := srv.store.List(context.Background())
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})

	t.Run("WrongPasswordRejected", func(t *testing.T) {
		form := "username=alice&password=wrong"
		req, _ := http.NewRequest("POST", "/api/v1/auth/access-token", strings.NewReader(form))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp := httptest.NewRecorder()
		srv.router.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusUnauthorized, resp.Code)
	})
}
