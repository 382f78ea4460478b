package acse

import "github.com/caio-sobreiro/dicomnet/pdu"

// ApplicationContextName is the single Application Context this stack
// speaks, Part 7 Annex A.2.1. There is only ever one DICOM application
// context in practice.
const ApplicationContextName = "1.2.840.10008.3.1.1.1"

// RequestParams are the local identity and capability parameters an SCU
// supplies when building an A-ASSOCIATE-RQ.
type RequestParams struct {
	CallingAETitle         string
	CalledAETitle          string
	MaxPDULength           uint32
	ImplementationClassUID string
	ImplementationVersion  string
	UserIdentity           *pdu.UserIdentityRQItem
	ExtendedNegotiations   []pdu.ExtendedNegotiationItem
}

// BuildAssociateRQ serializes proposed contexts and local parameters into
// an A-ASSOCIATE-RQ body, Part 7 Annex D.3.2.
func BuildAssociateRQ(params RequestParams, contexts []ProposedContext) *pdu.AssociateRQ {
	rq := &pdu.AssociateRQ{
		CalledAETitle:          params.CalledAETitle,
		CallingAETitle:         params.CallingAETitle,
		ApplicationContextName: ApplicationContextName,
	}

	ui := &pdu.UserInformation{
		MaxLength: &pdu.MaxLengthItem{MaxLength: params.MaxPDULength},
	}
	if params.ImplementationClassUID != "" {
		ui.ImplementationClassUID = &pdu.ImplementationClassUIDItem{UID: params.ImplementationClassUID}
	}
	if params.ImplementationVersion != "" {
		ui.ImplementationVersion = &pdu.ImplementationVersionNameItem{Name: params.ImplementationVersion}
	}
	if params.UserIdentity != nil {
		ui.UserIdentityRQ = params.UserIdentity
	}
	ui.ExtendedNegotiations = params.ExtendedNegotiations

	for _, pc := range contexts {
		rq.PresentationContexts = append(rq.PresentationContexts, pc.toPDU())
		if pc.Role != DefaultRole {
			ui.RoleSelections = append(ui.RoleSelections, pdu.RoleSelectionItem{
				SOPClassUID: pc.AbstractSyntax,
				SCURole:     pc.Role.SCU,
				SCPRole:     pc.Role.SCP,
			})
		}
	}
	rq.UserInformation = ui

	return rq
}

// SupportedAbstractSyntax is one abstract syntax an SCP is willing to
// accept, along with the transfer syntaxes it can handle and, optionally,
// a non-default role it is willing to play.
type SupportedAbstractSyntax struct {
	AbstractSyntax   string
	TransferSyntaxes []string
	Role             Role
}

// ResponseParams are the local identity and capability parameters an SCP
// supplies when answering an A-ASSOCIATE-RQ.
type ResponseParams struct {
	AETitle                string
	MaxPDULength           uint32
	ImplementationClassUID string
	ImplementationVersion  string
	Supported              []SupportedAbstractSyntax
}

func findSupported(supported []SupportedAbstractSyntax, abstractSyntax string) (SupportedAbstractSyntax, bool) {
	for _, s := range supported {
		if s.AbstractSyntax == abstractSyntax {
			return s, true
		}
	}
	return SupportedAbstractSyntax{}, false
}

func chooseTransferSyntax(proposed, supported []string) string {
	for _, p := range proposed {
		for _, s := range supported {
			if p == s {
				return p
			}
		}
	}
	return ""
}

func rolesRequested(rq *pdu.AssociateRQ, abstractSyntax string) (Role, bool) {
	if rq.UserInformation == nil {
		return Role{}, false
	}
	for _, rs := range rq.UserInformation.RoleSelections {
		if rs.SOPClassUID == abstractSyntax {
			return Role{SCU: rs.SCURole, SCP: rs.SCPRole}, true
		}
	}
	return Role{}, false
}

// negotiateRole intersects the peer's requested role with what this AE is
// configured to support for the abstract syntax, Part 7 Annex D.3.3.4.
func negotiateRole(requested Role, supported Role) Role {
	return Role{
		SCU: requested.SCU && supported.SCU,
		SCP: requested.SCP && supported.SCP,
	}
}

// Negotiate answers an inbound A-ASSOCIATE-RQ: for every proposed context,
// decide accept/reject and (when accepted) the single transfer syntax and
// negotiated role, then build the matching A-ASSOCIATE-AC. Every proposed
// context gets exactly one Presentation Context AC item in the same
// order, accepted or not, per Part 8 §9.3.3.3.
func Negotiate(rq *pdu.AssociateRQ, params ResponseParams) (*pdu.AssociateAC, []NegotiatedContext) {
	ac := &pdu.AssociateAC{
		CalledAETitle:          params.AETitle,
		CallingAETitle:         rq.CallingAETitle,
		ApplicationContextName: ApplicationContextName,
		UserInformation: &pdu.UserInformation{
			MaxLength: &pdu.MaxLengthItem{MaxLength: params.MaxPDULength},
		},
	}
	if params.ImplementationClassUID != "" {
		ac.UserInformation.ImplementationClassUID = &pdu.ImplementationClassUIDItem{UID: params.ImplementationClassUID}
	}
	if params.ImplementationVersion != "" {
		ac.UserInformation.ImplementationVersion = &pdu.ImplementationVersionNameItem{Name: params.ImplementationVersion}
	}

	var outcomes []NegotiatedContext

	for _, proposed := range rq.PresentationContexts {
		sup, ok := findSupported(params.Supported, proposed.AbstractSyntax)
		if !ok {
			ac.PresentationContexts = append(ac.PresentationContexts, pdu.PresentationContextACItem{
				ID:     proposed.ID,
				Result: pdu.PresentationContextAbstractSyntaxNotSupported,
			})
			outcomes = append(outcomes, NegotiatedContext{id: proposed.ID, abstractSyntax: proposed.AbstractSyntax, accepted: false, result: pdu.PresentationContextAbstractSyntaxNotSupported})
			continue
		}

		ts := chooseTransferSyntax(proposed.TransferSyntaxes, sup.TransferSyntaxes)
		if ts == "" {
			ac.PresentationContexts = append(ac.PresentationContexts, pdu.PresentationContextACItem{
				ID:     proposed.ID,
				Result: pdu.PresentationContextTransferSyntaxesNotSupported,
			})
			outcomes = append(outcomes, NegotiatedContext{id: proposed.ID, abstractSyntax: proposed.AbstractSyntax, accepted: false, result: pdu.PresentationContextTransferSyntaxesNotSupported})
			continue
		}

		role := DefaultRole
		if requested, hasRoleNegotiation := rolesRequested(rq, proposed.AbstractSyntax); hasRoleNegotiation {
			role = negotiateRole(requested, sup.Role)
			ac.UserInformation.RoleSelections = append(ac.UserInformation.RoleSelections, pdu.RoleSelectionItem{
				SOPClassUID: proposed.AbstractSyntax,
				SCURole:     role.SCU,
				SCPRole:     role.SCP,
			})
		}

		ac.PresentationContexts = append(ac.PresentationContexts, pdu.PresentationContextACItem{
			ID:             proposed.ID,
			Result:         pdu.PresentationContextAccepted,
			TransferSyntax: ts,
		})
		outcomes = append(outcomes, NegotiatedContext{
			id:             proposed.ID,
			abstractSyntax: proposed.AbstractSyntax,
			accepted:       true,
			result:         pdu.PresentationContextAccepted,
			transferSyntax: ts,
			role:           role,
		})
	}

	return ac, outcomes
}

// ParseAcceptedContexts turns an inbound A-ASSOCIATE-AC, matched against
// the contexts this side originally proposed, into the requestor's view of
// the negotiated outcome.
func ParseAcceptedContexts(proposed []ProposedContext, ac *pdu.AssociateAC) []NegotiatedContext {
	abstractByID := make(map[byte]string, len(proposed))
	for _, p := range proposed {
		abstractByID[p.ID] = p.AbstractSyntax
	}

	var role Role
	roleByAbstract := make(map[string]Role)
	if ac.UserInformation != nil {
		for _, rs := range ac.UserInformation.RoleSelections {
			roleByAbstract[rs.SOPClassUID] = Role{SCU: rs.SCURole, SCP: rs.SCPRole}
		}
	}

	outcomes := make([]NegotiatedContext, 0, len(ac.PresentationContexts))
	for _, item := range ac.PresentationContexts {
		abstract := abstractByID[item.ID]
		role = DefaultRole
		if r, ok := roleByAbstract[abstract]; ok {
			role = r
		}
		outcomes = append(outcomes, NegotiatedContext{
			id:             item.ID,
			abstractSyntax: abstract,
			accepted:       item.Result == pdu.PresentationContextAccepted,
			result:         item.Result,
			transferSyntax: item.TransferSyntax,
			role:           role,
		})
	}
	return outcomes
}

// AnyAccepted reports whether at least one context was accepted. Zero
// accepted contexts after a successful A-ASSOCIATE-AC is itself a failure
// condition an association layer should treat as a negotiation failure.
func AnyAccepted(outcomes []NegotiatedContext) bool {
	for _, o := range outcomes {
		if o.Accepted() {
			return true
		}
	}
	return false
}
