package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/petasbytes/buildfile-agent/internal/session"
)

// Tree is a repository file listing.
type Tree struct {
	Owner string
	Repo  string
	Ref   string
	Files []string
	// Truncated is set when the API or MaxTreeEntries cut the listing short.
	Truncated bool
}

// ListTree lists every file (blob) at ref, sorted, capped at MaxTreeEntries.
func (f *GitHubFetcher) ListTree(ctx context.Context, owner, repo, ref, token string) (Tree, error) {
	if ref == "" {
		ref = f.cfg.DefaultRef
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return Tree{}, err
	}
	t, _, err := f.client(ctx, token).Git.GetTree(ctx, owner, repo, ref, true)
	if err != nil {
		return Tree{}, fmt.Errorf("list tree %s/%s@%s: %s", owner, repo, ref, describeError(err))
	}

	out := Tree{Owner: owner, Repo: repo, Ref: ref, Truncated: t.GetTruncated()}
	for _, e := range t.Entries {
		if e.GetType() == "blob" {
			out.Files = append(out.Files, e.GetPath())
		}
	}
	sort.Strings(out.Files)
	if len(out.Files) > f.cfg.MaxTreeEntries {
		out.Files = out.Files[:f.cfg.MaxTreeEntries]
		out.Truncated = true
	}
	return out, nil
}

// StartPayload renders t as the first step's payload: coordinates as
// KEY=value lines followed by the file list.
func (t Tree) StartPayload() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s=%s\n", session.KeyRepoOwner, t.Owner)
	fmt.Fprintf(&b, "%s=%s\n", session.KeyRepoName, t.Repo)
	fmt.Fprintf(&b, "%s=%s\n", session.KeyBranch, t.Ref)
	b.WriteString("\nRepository files:\n")
	for _, p := range t.Files {
		b.WriteString("- ")
		b.WriteString(p)
		b.WriteString("\n")
	}
	if t.Truncated {
		b.WriteString("(listing truncated)\n")
	}
	return b.String()
}
