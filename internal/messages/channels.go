/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package messages

// Well-known bus channel names shared by every service so a worker, the
// records manager, the dataset manager, and the controller all agree on
// where to push/pull/publish without a side-channel config file.
const (
	// QueueCredits carries CreditDrop messages from the timing manager to
	// workers (push/pull, load-balanced).
	QueueCredits = "credits"

	// QueueInferenceResults carries MetricRecords messages from workers to
	// the records manager (push/pull).
	QueueInferenceResults = "inference_results"

	// QueueDataset is the req/rep queue the dataset manager listens on for
	// ConversationRequest/ConversationTurnRequest.
	QueueDataset = "dataset"

	// QueueControl is the req/rep queue the records manager answers
	// RealtimeMetrics requests on.
	QueueControl = "control"

	// TopicCommands is the pub/sub topic the controller broadcasts
	// ProfileConfigure/ProfileStart/ProfileCancel/Shutdown on.
	TopicCommands = "commands"
)
