// Package events defines the typed turn lifecycle events.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - turn_state.*
//   - stage.*
//   - user_input.*
//   - assistant_response.*
//   - synthesis.*
//
// turn_state events
//
//   - TurnStarted (turn_state.started): a run started.
//   - TurnCompleted (turn_state.completed): the run produced a response
//     audio artifact.
//   - TurnFailed (turn_state.failed): the run ended without audio, either
//     because generation failed or because every segment failed to
//     synthesize.
//   - TurnArchived (turn_state.archived): the trailing archive step
//     finished; carries the summary and whether persistence succeeded.
//
// stage events
//
//   - StageStarted (stage.started): a pipeline stage began.
//   - StageCompleted (stage.completed): a stage returned its update.
//   - StageFailed (stage.failed): a stage hit an error. Degraded stages
//     emit this and still complete.
//
// user_input events
//
//   - UserTranscriptFinal (user_input.transcript_final): the transcript that
//     replaced the typed input.
//
// assistant_response events
//
//   - AssistantResponseFinal (assistant_response.final): cleaned response
//     text and the extracted reasoning.
//
// synthesis events
//
//   - SegmentSkipped (synthesis.segment_skipped): a segment produced no
//     audio and was left out of the artifact.
package events
