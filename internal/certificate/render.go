package certificate

import (
	"encoding/json"
	"fmt"
	"strings"

	dErrors "sealedrecord/pkg/domain-errors"
)

const legalNotice = `This certificate of completion is a tamper-evident record of the electronic
signing ceremony described above. Each event is chained to its predecessor by
a cryptographic hash; any alteration of the record invalidates the chain.
Signers consented to conduct this transaction electronically before signing.`

const divider = "----------------------------------------------------------------------"

// Render produces the human-readable certificate artifact. The output is a
// pure function of the certificate: same certificate, same bytes, so it is
// safe to retry and to cache by certificate hash.
func Render(cert Certificate) (string, error) {
	var snap Snapshot
	if err := json.Unmarshal(cert.Snapshot, &snap); err != nil {
		return "", dErrors.Wrap(dErrors.CodeInternal, "decode certificate snapshot", err)
	}

	var b strings.Builder
	b.WriteString("CERTIFICATE OF COMPLETION\n")
	b.WriteString(divider + "\n\n")

	b.WriteString("DOCUMENT\n")
	fmt.Fprintf(&b, "  Title:           %s\n", snap.Document.Title)
	fmt.Fprintf(&b, "  Document ID:     %s\n", snap.Document.ID)
	fmt.Fprintf(&b, "  Original digest: %s\n", snap.Document.OriginalDigest)
	fmt.Fprintf(&b, "  Final digest:    %s\n", snap.Document.FinalDigest)
	if snap.Document.ArtifactDigest != "" {
		fmt.Fprintf(&b, "  Artifact digest: %s\n", snap.Document.ArtifactDigest)
	}
	fmt.Fprintf(&b, "  Completed:       %s\n", snap.Document.CompletedAt)
	b.WriteString("\n")

	b.WriteString("SIGNERS\n")
	for _, signer := range snap.Signers {
		fmt.Fprintf(&b, "  %d. %s <%s> (%s)\n", signer.Position, signer.Name, signer.Email, signer.Role)
		fmt.Fprintf(&b, "     Status:    %s\n", signer.Status)
		if signer.ConsentAt != "" {
			fmt.Fprintf(&b, "     Consented: %s\n", signer.ConsentAt)
		}
		if signer.SignedAt != "" {
			fmt.Fprintf(&b, "     Signed:    %s\n", signer.SignedAt)
		}
		if signer.IPAddress != "" {
			fmt.Fprintf(&b, "     From:      %s\n", signer.IPAddress)
		}
	}
	b.WriteString("\n")

	b.WriteString("EVENT TRAIL\n")
	for _, event := range snap.Events {
		fmt.Fprintf(&b, "  %4d  %-32s  %s/%s  %s\n",
			event.Sequence, event.Timestamp, event.ActorType, event.ActorID, event.Kind)
	}
	b.WriteString("\n")

	b.WriteString("LEGAL NOTICE\n")
	b.WriteString(legalNotice + "\n\n")

	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "Certificate ID:   %s\n", cert.ID)
	fmt.Fprintf(&b, "Certificate hash: %s\n", cert.Hash)
	fmt.Fprintf(&b, "Generated:        %s\n", snap.GeneratedAt)
	return b.String(), nil
}
