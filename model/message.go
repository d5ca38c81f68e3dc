package model

// Performative identifies the FIPA-style speech act carried by a Message.
type Performative string

const (
	CFP             Performative = "CFP"
	Propose         Performative = "PROPOSE"
	Refuse          Performative = "REFUSE"
	AcceptProposal  Performative = "ACCEPT_PROPOSAL"
	RejectProposal  Performative = "REJECT_PROPOSAL"
	Inform          Performative = "INFORM"
	Cancel          Performative = "CANCEL"
	QueryRef        Performative = "QUERY_REF"
)

// Protocol identifies which interaction pattern a Message belongs to.
type Protocol string

const (
	ProtocolContractNet   Protocol = "contract-net"
	ProtocolSystemControl Protocol = "system-control"
)

// Ontology identifies the semantic vocabulary of a Message's body.
type Ontology string

const (
	OntologyClassroomAvailability Ontology = "classroom-availability"
	OntologyRoomAssignment        Ontology = "room-assignment"
	OntologyAgentStatus           Ontology = "agent-status"
	OntologySystemControl         Ontology = "system-control"
)

// Message is the envelope exchanged over the Transport. Body carries one of
// the typed payloads below depending on Performative/Ontology.
type Message struct {
	ID             string
	From           string
	To             string
	Performative   Performative
	Protocol       Protocol
	Ontology       Ontology
	ConversationID string
	CorrelationID  string
	Metadata       map[string]string
	Body           interface{}
}

// CFPBody is the body of a CFP message sent by a professor to a room.
type CFPBody struct {
	SubjectName        string
	SubjectCode        string
	Enrollment         int
	Level              int
	Campus             string
	Activity           Activity
	BloquesPendientes  int
	PartTime           bool
	LastRoom           string
	LastDay            Day
	LastBlock          int
}

// ClassroomAvailability is the body of a PROPOSE reply.
type ClassroomAvailability struct {
	Codigo          string
	Campus          string
	Capacidad       int
	Turno           int
	AvailableBlocks map[Day][]int
}

// AssignmentRequest is one line item inside a BatchAssignmentRequest.
type AssignmentRequest struct {
	Day             Day
	Block           int
	SubjectName     string
	SubjectCode     string
	Instance        int
	Activity        Activity
	Satisfaction    int
	ClassroomCode   string
	Vacancy         int
}

// BatchAssignmentRequest is the body of an ACCEPT_PROPOSAL message.
type BatchAssignmentRequest struct {
	Requests []AssignmentRequest
}

// ConfirmedAssignment is one line item inside a BatchAssignmentConfirmation.
type ConfirmedAssignment struct {
	Day           Day
	Block         int
	ClassroomCode string
	Satisfaction  int
}

// BatchAssignmentConfirmation is the body of an INFORM reply to ACCEPT_PROPOSAL.
type BatchAssignmentConfirmation struct {
	Confirmed []ConfirmedAssignment
}
