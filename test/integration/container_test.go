//go:build integration

package integration

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// externalDatabaseEnv points the suite at an existing server instead of a
// throwaway container.
const externalDatabaseEnv = "PRAXIS_TEST_DATABASE_URL"

const (
	postgresImage    = "postgres:16-alpine"
	postgresUser     = "praxis"
	postgresPassword = "praxis"
	postgresDB       = "praxistest"
	readyTimeout     = 30 * time.Second
)

// postgresContainer is a disposable Postgres server run through the docker CLI.
type postgresContainer struct {
	name string
	port int
	id   string
}

func docker(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// testDatabase returns a connection string for the suite and a func that
// releases whatever was started for it.
func testDatabase(ctx context.Context) (string, func(), error) {
	if url := os.Getenv(externalDatabaseEnv); url != "" {
		if err := waitReady(ctx, url, readyTimeout); err != nil {
			return "", nil, err
		}
		return url, func() {}, nil
	}

	pc, err := runPostgres(ctx)
	if err != nil {
		return "", nil, err
	}
	if err := waitReady(ctx, pc.connString(), readyTimeout); err != nil {
		pc.terminate()
		return "", nil, err
	}
	return pc.connString(), pc.terminate, nil
}

func runPostgres(ctx context.Context) (*postgresContainer, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("reserve port: %w", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	pc := &postgresContainer{name: fmt.Sprintf("praxis-it-%d-%d", os.Getpid(), port), port: port}
	pc.id, err = docker(ctx, "run", "-d", "--rm",
		"--name", pc.name,
		"-p", fmt.Sprintf("127.0.0.1:%d:5432", port),
		"-e", "POSTGRES_USER="+postgresUser,
		"-e", "POSTGRES_PASSWORD="+postgresPassword,
		"-e", "POSTGRES_DB="+postgresDB,
		postgresImage,
	)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (pc *postgresContainer) connString() string {
	return fmt.Sprintf("postgres://%s:%s@127.0.0.1:%d/%s?sslmode=disable",
		postgresUser, postgresPassword, pc.port, postgresDB)
}

// terminate stops the container; --rm removes it once stopped.
func (pc *postgresContainer) terminate() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := docker(ctx, "stop", "-t", "1", pc.id); err != nil {
		fmt.Fprintf(os.Stderr, "stop %s: %v\n", pc.name, err)
	}
}

// waitReady retries a single connection and SELECT 1 until the server answers
// or timeout passes.
func waitReady(ctx context.Context, connStr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var lastErr error
	for {
		conn, err := pgx.Connect(ctx, connStr)
		if err == nil {
			var one int
			err = conn.QueryRow(ctx, "SELECT 1").Scan(&one)
			conn.Close(context.Background())
			if err == nil {
				return nil
			}
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres not ready after %s: %w", timeout, lastErr)
		case <-ticker.C:
		}
	}
}
