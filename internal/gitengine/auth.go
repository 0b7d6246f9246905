package gitengine

import (
	"fmt"

	gogitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"golang.org/x/crypto/ssh"
)

// BuildSSHAuth builds an in-memory SSH credentials callback from a raw PEM
// private key, matching spec.md §4.2: "a single credentials callback that
// serves an in-memory SSH private key (no on-disk key files)". The SSH
// username defaults to "git" — go-git substitutes whatever the remote URL
// actually supplies when present, same as the teacher's resolveSSHAuth.
//
// Host key verification is intentionally not performed: the original has
// no known_hosts concept at all (it calls git2's ssh_key_from_memory with
// no host verification callback), so this port does not add one either.
func BuildSSHAuth(pemBytes []byte) (*gogitssh.PublicKeys, error) {
	publicKey, err := gogitssh.NewPublicKeys("git", pemBytes, "")
	if err != nil {
		return nil, fmt.Errorf("parsing SSH private key: %w", err)
	}
	publicKey.HostKeyCallback = ssh.InsecureIgnoreHostKey()
	return publicKey, nil
}
