package enums

import "fmt"

// ClientStatus is the current pipeline stage of a client record.
type ClientStatus string

const (
	ClientStatusPrimeiroAtendimento  ClientStatus = "PrimeiroAtendimento"
	ClientStatusInteressado          ClientStatus = "Interessado"
	ClientStatusDocumentacaoRecebida ClientStatus = "DocumentacaoRecebida"
	ClientStatusVendaGerada          ClientStatus = "VendaGerada"
	ClientStatusArquivado            ClientStatus = "Arquivado"
)

var validClientStatuses = []ClientStatus{
	ClientStatusPrimeiroAtendimento,
	ClientStatusInteressado,
	ClientStatusDocumentacaoRecebida,
	ClientStatusVendaGerada,
	ClientStatusArquivado,
}

// DocumentationStatuses is the set counted as "documentation received".
var DocumentationStatuses = []ClientStatus{ClientStatusDocumentacaoRecebida}

// String implements fmt.Stringer.
func (s ClientStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ClientStatus.
func (s ClientStatus) IsValid() bool {
	for _, candidate := range validClientStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsDocumentation reports whether the status belongs to the documentation set.
func (s ClientStatus) IsDocumentation() bool {
	for _, candidate := range DocumentationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseClientStatus converts raw input into a ClientStatus.
func ParseClientStatus(value string) (ClientStatus, error) {
	for _, candidate := range validClientStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid client status %q", value)
}
