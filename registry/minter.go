package registry

import (
	"fmt"
	"time"

	"github.com/ruteri/proof-credential-registry/interfaces"
)

// credentialMinter allocates credential ids and binds them to proof records.
// It is owned by a Registry and only ever called with the registry lock held.
type credentialMinter struct {
	credentials map[interfaces.CredentialID]interfaces.Credential
	byOwner     map[interfaces.Principal][]interfaces.CredentialID
	lastID      interfaces.CredentialID
}

func newCredentialMinter() *credentialMinter {
	return &credentialMinter{
		credentials: make(map[interfaces.CredentialID]interfaces.Credential),
		byOwner:     make(map[interfaces.Principal][]interfaces.CredentialID),
	}
}

// prepare checks that rec can receive a credential and returns the credential
// that mint would create, without changing any state.
func (m *credentialMinter) prepare(rec *interfaces.ProofRecord, metadata *interfaces.EventMetadata, mintedAt uint64) (interfaces.Credential, error) {
	if rec.Credential != nil {
		return interfaces.Credential{}, fmt.Errorf("%w: proof %d bound to credential %d", interfaces.ErrAlreadyMinted, rec.ID, *rec.Credential)
	}

	id := m.lastID + 1
	if _, taken := m.credentials[id]; taken {
		return interfaces.Credential{}, fmt.Errorf("%w: credential %d", interfaces.ErrIDAllocation, id)
	}

	credential := interfaces.Credential{
		ID:       id,
		ProofID:  rec.ID,
		Owner:    rec.Submitter,
		EventID:  rec.EventID,
		MintedAt: time.Unix(int64(mintedAt), 0).UTC(),
	}
	if metadata != nil {
		credential.MetadataRef = metadata.ImageRef
	}
	return credential, nil
}

// commit stores a prepared credential and binds it to rec.
func (m *credentialMinter) commit(rec *interfaces.ProofRecord, credential interfaces.Credential) {
	m.lastID = credential.ID
	m.credentials[credential.ID] = credential
	m.byOwner[credential.Owner] = append(m.byOwner[credential.Owner], credential.ID)

	id := credential.ID
	rec.Credential = &id
}

func (m *credentialMinter) get(id interfaces.CredentialID) (interfaces.Credential, bool) {
	c, ok := m.credentials[id]
	return c, ok
}

func (m *credentialMinter) total() uint64 {
	return uint64(len(m.credentials))
}

func (m *credentialMinter) owned(owner interfaces.Principal) []interfaces.CredentialID {
	return m.byOwner[owner]
}
