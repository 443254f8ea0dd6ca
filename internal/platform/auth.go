package platform

import (
	"bufio"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/a2-ai/ghqc/internal/ghqcerrors"
)

// tokenEnvVar is the standard environment variable name GitHub tooling
// looks for a personal access token under.
const tokenEnvVar = "GITHUB_TOKEN"

// DiscoverToken implements the §4.1 authentication discovery order: env
// token, then the platform CLI's active token, then its stored config,
// then the git credential helper, then .netrc. Each step may fail silently
// and fall through to the next; the first hit wins. Returns an
// *ghqcerrors.AuthMissingError (not a bare error) when every step fails, so
// callers can downgrade to an unauthenticated, public-reads-only client.
func DiscoverToken() (string, error) {
	tried := make([]string, 0, 5)

	if tok := os.Getenv(tokenEnvVar); tok != "" && validTokenShape(tok) {
		return tok, nil
	}
	tried = append(tried, "env:"+tokenEnvVar)

	if tok, ok := ghCLIActiveToken(); ok {
		return tok, nil
	}
	tried = append(tried, "gh-cli-active-token")

	if tok, ok := ghCLIStoredConfig(); ok {
		return tok, nil
	}
	tried = append(tried, "gh-cli-stored-config")

	if tok, ok := gitCredentialHelper(); ok {
		return tok, nil
	}
	tried = append(tried, "git-credential-helper")

	if tok, ok := netrcToken(); ok {
		return tok, nil
	}
	tried = append(tried, "netrc")

	return "", &ghqcerrors.AuthMissingError{Tried: tried}
}

// validTokenShape accepts either a known GitHub PAT prefix or any
// alphanumeric/underscore/hyphen string ≥20 chars (to accept enterprise
// classic PATs that predate the prefixed scheme).
func validTokenShape(tok string) bool {
	knownPrefixes := []string{"ghp_", "gho_", "ghu_", "ghs_", "ghr_", "github_pat_"}
	for _, p := range knownPrefixes {
		if strings.HasPrefix(tok, p) && len(tok) >= 20 {
			return true
		}
	}
	return genericTokenRe.MatchString(tok)
}

var genericTokenRe = regexp.MustCompile(`^[A-Za-z0-9_-]{20,}$`)

// ghCLIActiveToken shells out to `gh auth token`, mirroring the
// "platform-CLI active token" step. Absence of the gh binary or a
// non-zero exit is treated as a silent miss.
func ghCLIActiveToken() (string, bool) {
	out, err := exec.Command("gh", "auth", "token").Output()
	if err != nil {
		return "", false
	}
	tok := strings.TrimSpace(string(out))
	if tok == "" || !validTokenShape(tok) {
		return "", false
	}
	return tok, true
}

// ghCLIStoredConfig reads gh's hosts.yml directly (when GH_CONFIG_DIR or
// the default config location exists) as a fallback for environments
// where the gh binary exists but `gh auth token` fails (e.g. stale
// keyring lock) while the stored config is still readable.
func ghCLIStoredConfig() (string, bool) {
	dir := os.Getenv("GH_CONFIG_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", false
		}
		dir = filepath.Join(home, ".config", "gh")
	}
	data, err := os.ReadFile(filepath.Join(dir, "hosts.yml"))
	if err != nil {
		return "", false
	}
	tok := oauthTokenRe.FindSubmatch(data)
	if tok == nil {
		return "", false
	}
	return string(tok[1]), true
}

var oauthTokenRe = regexp.MustCompile(`oauth_token:\s*(\S+)`)

// gitCredentialHelper invokes `git credential fill` against github.com,
// following the same "shell out to git" idiom used by the local
// repository adapter's Fetch operation.
func gitCredentialHelper() (string, bool) {
	cmd := exec.Command("git", "credential", "fill")
	cmd.Stdin = strings.NewReader("protocol=https\nhost=github.com\n\n")
	out, err := cmd.Output()
	if err != nil {
		return "", false
	}
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "password=") {
			tok := strings.TrimPrefix(line, "password=")
			if validTokenShape(tok) {
				return tok, true
			}
		}
	}
	return "", false
}

// netrcToken reads ~/.netrc (or $NETRC) for a github.com machine entry.
func netrcToken() (string, bool) {
	path := os.Getenv("NETRC")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", false
		}
		path = filepath.Join(home, ".netrc")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	fields := strings.Fields(string(data))
	var inGitHub bool
	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "machine":
			inGitHub = i+1 < len(fields) && fields[i+1] == "github.com"
		case "password":
			if inGitHub && i+1 < len(fields) {
				tok := fields[i+1]
				if validTokenShape(tok) {
					return tok, true
				}
			}
		}
	}
	return "", false
}
