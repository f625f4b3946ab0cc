// Package ipc implements the framed message protocol used between the
// installer daemon and its two peers: the updater and the UI agent.
//
// A message on the wire is an identifier (int32) followed by a
// length-prefixed payload (arbitrary bytes). Identifiers form closed,
// direction-scoped groups; the framing layer does not check direction,
// and the receiving side decides what to do with an identifier it does
// not expect (the stage controller logs and ignores one from the updater).
package ipc

import "fmt"

// Identifier enumerates the closed set of message types exchanged between
// the daemon and its peers.
type Identifier int32

// Daemon -> Updater identifiers.
const (
	ExtractionStarted Identifier = iota + 1
	ExtractedWithProgress
	ArchiveExtractionFailed
	ValidationStarted
	InstallationStartedStage1
	InstallationFinishedStage1
	InstallationFinishedStage2
	InstallationFinishedStage3
	UpdaterAlivePing
)

// Updater -> Daemon identifiers.
const (
	InstallationInput Identifier = iota + 100
	SentUpdateAppcastItemData
	ResumeToStage2
	UpdaterAlivePong
)

// Daemon -> Agent identifiers.
const (
	RegisterRelaunchBundlePath Identifier = iota + 200
	RegisterInstallationInfo
	ShowProgress
	StopProgress
	Relaunch
)

// Agent -> Daemon identifiers.
const (
	RelaunchBundlePathRegistered Identifier = iota + 300
)

var names = map[Identifier]string{
	ExtractionStarted:            "EXTRACTION_STARTED",
	ExtractedWithProgress:        "EXTRACTED_WITH_PROGRESS",
	ArchiveExtractionFailed:      "ARCHIVE_EXTRACTION_FAILED",
	ValidationStarted:            "VALIDATION_STARTED",
	InstallationStartedStage1:    "INSTALLATION_STARTED_STAGE_1",
	InstallationFinishedStage1:   "INSTALLATION_FINISHED_STAGE_1",
	InstallationFinishedStage2:   "INSTALLATION_FINISHED_STAGE_2",
	InstallationFinishedStage3:   "INSTALLATION_FINISHED_STAGE_3",
	UpdaterAlivePing:             "UPDATER_ALIVE_PING",
	InstallationInput:            "INSTALLATION_INPUT",
	SentUpdateAppcastItemData:    "SENT_UPDATE_APPCAST_ITEM_DATA",
	ResumeToStage2:               "RESUME_TO_STAGE_2",
	UpdaterAlivePong:             "UPDATER_ALIVE_PONG",
	RegisterRelaunchBundlePath:   "REGISTER_RELAUNCH_BUNDLE_PATH",
	RegisterInstallationInfo:     "REGISTER_INSTALLATION_INFO",
	ShowProgress:                 "SHOW_PROGRESS",
	StopProgress:                 "STOP_PROGRESS",
	Relaunch:                     "RELAUNCH",
	RelaunchBundlePathRegistered: "RELAUNCH_BUNDLE_PATH_REGISTERED",
}

// String renders the identifier's protocol name for logging.
func (id Identifier) String() string {
	if name, ok := names[id]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int32(id))
}

// Message is a single framed protocol message.
type Message struct {
	ID      Identifier
	Payload []byte
}
