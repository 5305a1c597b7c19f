package lifecycle

import "time"

// Application (dossier) states.
const (
	AppDraft              State = "draft"
	AppCallSelected       State = "call_selected"
	AppGuideReady         State = "guide_ready"
	AppPreEligibility     State = "preeligibility"
	AppDataCollection     State = "data_collection"
	AppDocumentCollection State = "document_collection"
	AppWriting            State = "writing"
	AppValidation         State = "validation"
	AppReadyForSubmission State = "ready_for_submission"
	AppSubmitted          State = "submitted"
	AppContracting        State = "contracting"
	AppImplementation     State = "implementation"
	AppMonitoring         State = "monitoring"
)

// Application governs funding applications. Most stages can step back one.
var Application = NewMachine(KindApplication, AppDraft, []StateDef{
	{AppDraft, "Draft", []State{AppCallSelected}},
	{AppCallSelected, "Call selected", []State{AppGuideReady, AppDraft}},
	{AppGuideReady, "Guide ready", []State{AppPreEligibility, AppCallSelected}},
	{AppPreEligibility, "Pre-eligibility check", []State{AppDataCollection, AppGuideReady}},
	{AppDataCollection, "Data collection", []State{AppDocumentCollection, AppPreEligibility}},
	{AppDocumentCollection, "Document collection", []State{AppWriting, AppDataCollection}},
	{AppWriting, "Writing", []State{AppValidation, AppDocumentCollection}},
	{AppValidation, "Validation", []State{AppReadyForSubmission, AppWriting}},
	{AppReadyForSubmission, "Ready for submission", []State{AppSubmitted, AppValidation}},
	{AppSubmitted, "Submitted", []State{AppContracting}},
	{AppContracting, "Contracting", []State{AppImplementation}},
	{AppImplementation, "Implementation", []State{AppMonitoring}},
	{AppMonitoring, "Monitoring", nil},
})

// ApplicationGenesis is the history a new application starts with: created
// as a draft and immediately bound to its call.
func ApplicationGenesis(by, callTitle string, at time.Time) []HistoryEntry {
	at = at.UTC()
	return []HistoryEntry{
		{To: AppDraft, At: at, By: by, Reason: "application created"},
		{From: AppDraft, To: AppCallSelected, At: at, By: by, Reason: "call selected: " + callTitle},
	}
}
