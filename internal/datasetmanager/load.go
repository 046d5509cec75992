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

package datasetmanager

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ai-dynamo/aiperf/internal/model"
)

// LoadConversations reads one model.Conversation per line from a JSONL
// file, the mirror image of internal/export's per-line write path. Blank
// lines are skipped.
func LoadConversations(path string) ([]*model.Conversation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("datasetmanager: open %s: %w", path, err)
	}
	defer f.Close()

	var conversations []*model.Conversation
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}
		var c model.Conversation
		if err := json.Unmarshal(text, &c); err != nil {
			return nil, fmt.Errorf("datasetmanager: parse %s line %d: %w", path, line, err)
		}
		conversations = append(conversations, &c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("datasetmanager: read %s: %w", path, err)
	}
	return conversations, nil
}
