package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-reporter/types"
	"golang.org/x/mod/semver"
)

const gitCommandTimeout = 5 * time.Second

func (a *Aggregator) collectBuildMetadata() types.BuildMetadata {
	return types.BuildMetadata{
		Timestamp:   time.Now(),
		Version:     a.readManifestVersion(),
		Environment: a.environment,
		Git:         a.collectGitInfo(),
		Runtime:     runtime.Version(),
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
		CI:          a.ci,
		BuildID:     a.buildID,
	}
}

// readManifestVersion pulls the version from the project manifest. An
// unreadable file, unparseable JSON, or a non-semver version all fall back
// to "1.0.0".
func (a *Aggregator) readManifestVersion() string {
	const fallback = "1.0.0"

	data, err := os.ReadFile(filepath.Join(a.projectDir, "package.json"))
	if err != nil {
		a.log.Debug("Manifest not readable, using fallback version", "error", err)
		return fallback
	}

	var manifest struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		a.log.Debug("Manifest not parseable, using fallback version", "error", err)
		return fallback
	}
	if manifest.Version == "" || !semver.IsValid("v"+manifest.Version) {
		return fallback
	}
	return manifest.Version
}

// collectGitInfo shells out to git for the run's source-control metadata.
// The block is all or nothing: the first command failure swallows the whole
// query and the fixed defaults are returned instead.
func (a *Aggregator) collectGitInfo() types.GitInfo {
	var firstErr error
	run := func(args ...string) string {
		if firstErr != nil {
			return ""
		}
		out, err := a.git(args...)
		if err != nil {
			firstErr = err
		}
		return out
	}

	branch := run("rev-parse", "--abbrev-ref", "HEAD")
	commit := run("rev-parse", "HEAD")
	message := run("log", "-1", "--pretty=%s")
	author := run("log", "-1", "--pretty=%an <%ae>")
	commitUnix := run("log", "-1", "--pretty=%ct")
	porcelain := run("status", "--porcelain")
	tagLines := run("tag", "--points-at", "HEAD")

	if firstErr != nil {
		a.log.Debug("Git metadata unavailable, using defaults", "error", firstErr)
		return defaultGitInfo()
	}

	seconds, err := strconv.ParseInt(commitUnix, 10, 64)
	if err != nil {
		a.log.Debug("Git commit time unparseable, using defaults", "error", err)
		return defaultGitInfo()
	}

	tags := []string{}
	if tagLines != "" {
		tags = strings.Split(tagLines, "\n")
	}

	return types.GitInfo{
		Branch:        branch,
		Commit:        commit,
		CommitMessage: message,
		Author:        author,
		CommitTime:    time.Unix(seconds, 0),
		Dirty:         porcelain != "",
		Tags:          tags,
	}
}

func (a *Aggregator) git(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), gitCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = a.projectDir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func defaultGitInfo() types.GitInfo {
	return types.GitInfo{
		Branch:        "unknown",
		Commit:        "unknown",
		CommitMessage: "unknown",
		Author:        "unknown",
		CommitTime:    time.Now(),
		Tags:          []string{},
	}
}
