package events

const FaultEvent = "Fault"

type Fault struct {
	FailedEvent Envelope `json:"failedEvent"`
	ErrorClass  string   `json:"errorClass"`
	Message     string   `json:"message"`
	Consumer    string   `json:"consumer"`
}
