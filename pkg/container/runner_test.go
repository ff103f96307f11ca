package container_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/dukex/goalgate/pkg/container"
	"github.com/dukex/goalgate/pkg/log"
	"github.com/dukex/goalgate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDocker writes an executable shell script standing in for the docker
// CLI. "kill" invocations append to a marker file next to the script.
func fakeDocker(t *testing.T, body string) (binary, killLog string) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}

	dir := t.TempDir()
	binary = filepath.Join(dir, "docker")
	killLog = filepath.Join(dir, "kills")

	script := "#!/bin/sh\n" +
		"if [ \"$1\" = \"kill\" ]; then echo \"$2\" >> " + killLog + "; exit 0; fi\n" +
		body + "\n"

	require.NoError(t, os.WriteFile(binary, []byte(script), 0o700)) // #nosec G306

	return binary, killLog
}

func TestArgs(t *testing.T) {
	t.Parallel()

	r := container.NewDockerRunner("", 0, log.Discard())
	args := r.Args(container.Spec{
		Name:    "simulation-g1_abcd1234",
		Image:   "factory-nsga2:latest",
		WorkDir: "/runs/g1",
		Env:     map[string]string{"QUANTITY": "100", "GOAL_ID": "g1"},
	})

	assert.Equal(t, []string{
		"run", "--rm",
		"--name", "simulation-g1_abcd1234",
		"-v", "/runs/g1:/workspace",
		"-e", "GOAL_ID=g1",
		"-e", "QUANTITY=100",
		"factory-nsga2:latest",
	}, args)
}

func TestRun_CapturesOutput(t *testing.T) {
	t.Parallel()

	binary, _ := fakeDocker(t, `echo "args: $*"
echo '{"predicted_completion_time": "2025-03-05T10:00:00"}'
echo "warming up" >&2`)

	r := container.NewDockerRunner(binary, time.Minute, log.Discard())

	out, err := r.Run(context.Background(), container.Spec{Name: "sim", Image: "img:1", Env: map[string]string{"A": "1"}})
	require.NoError(t, err)

	assert.Equal(t, 0, out.ExitCode)
	assert.Contains(t, string(out.Stdout), "args: run --rm --name sim -e A=1 img:1")
	assert.Contains(t, string(out.Stdout), "predicted_completion_time")
	assert.Equal(t, "warming up\n", string(out.Stderr))
}

func TestRun_NonZeroExitIsNotAnError(t *testing.T) {
	t.Parallel()

	binary, _ := fakeDocker(t, `echo "boom" >&2
exit 3`)

	r := container.NewDockerRunner(binary, time.Minute, log.Discard())

	out, err := r.Run(context.Background(), container.Spec{Image: "img:1"})
	require.NoError(t, err)
	assert.Equal(t, 3, out.ExitCode)
	assert.Equal(t, "boom\n", string(out.Stderr))
}

func TestRun_TimeoutKillsContainer(t *testing.T) {
	t.Parallel()

	binary, killLog := fakeDocker(t, `exec sleep 5`)

	r := container.NewDockerRunner(binary, 100*time.Millisecond, log.Discard())

	_, err := r.Run(context.Background(), container.Spec{Name: "simulation-slow", Image: "img:1"})
	require.ErrorIs(t, err, models.ErrContainerTimeout)

	data, readErr := os.ReadFile(killLog)
	require.NoError(t, readErr)
	assert.Equal(t, "simulation-slow", strings.TrimSpace(string(data)))
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	r := container.NewDockerRunner(filepath.Join(t.TempDir(), "missing-docker"), time.Minute, log.Discard())

	_, err := r.Run(context.Background(), container.Spec{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image is required")

	_, err = r.Run(context.Background(), container.Spec{Image: "img:1"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrContainerTimeout)
}
