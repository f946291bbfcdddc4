package pipeline

// Snapshot is the serializable pipeline state, matching spec.md §3's
// Pipeline snapshot entity exactly: namespaces -> k->v, 3-D store,
// files, and a bounded history.
type Snapshot struct {
	PipelineID string                                                     `json:"pipeline_id"`
	Data       map[string]map[string]interface{}                         `json:"data"`
	Data3D     map[string]map[string]map[string]map[string]interface{}   `json:"data_3d"`
	Files      map[string]File                                           `json:"files"`
	History    []HistoryEntry                                            `json:"history"`
}

// Export returns the full serializable state, per spec.md §4.3.
func (p *Pipeline) Export() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{
		PipelineID: p.pipelineID,
		Data:       deepCopyNamespaces(p.data),
		Data3D:     deepCopy3D(p.data3D),
		Files:      copyFiles(p.files),
		History:    append([]HistoryEntry(nil), p.history...),
	}
}

// Import replaces the pipeline's full state with snap, matching the
// Python import_data contract. Missing data_3d/files default to empty
// maps so a snapshot produced before those surfaces existed still
// loads, per §6's "re-hydration must accept snapshots missing data_3d
// or files" requirement.
func (p *Pipeline) Import(snap Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pipelineID = snap.PipelineID
	if snap.Data != nil {
		p.data = deepCopyNamespaces(snap.Data)
	} else {
		p.data = make(map[string]map[string]interface{})
	}
	if snap.Data3D != nil {
		p.data3D = deepCopy3D(snap.Data3D)
	} else {
		p.data3D = make(map[string]map[string]map[string]map[string]interface{})
	}
	if snap.Files != nil {
		p.files = copyFiles(snap.Files)
	} else {
		p.files = make(map[string]File)
	}
	p.history = append([]HistoryEntry(nil), snap.History...)
	p.trimHistoryLocked()
}

// ExportForFrontend filters the snapshot to serializable entries and
// truncates history to the most recent maxHistory entries, per §4.3's
// export_for_frontend. Live agent contexts never enter Pipeline in
// this implementation (they're held by the agent layer, not the
// store), so this is primarily a history truncation.
func (p *Pipeline) ExportForFrontend(maxHistory int) Snapshot {
	snap := p.Export()
	if maxHistory > 0 && len(snap.History) > maxHistory {
		snap.History = snap.History[len(snap.History)-maxHistory:]
	}
	return snap
}

func deepCopyNamespaces(in map[string]map[string]interface{}) map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(in))
	for ns, kv := range in {
		copied := make(map[string]interface{}, len(kv))
		for k, v := range kv {
			copied[k] = v
		}
		out[ns] = copied
	}
	return out
}

func deepCopy3D(in map[string]map[string]map[string]map[string]interface{}) map[string]map[string]map[string]map[string]interface{} {
	out := make(map[string]map[string]map[string]map[string]interface{}, len(in))
	for user, byTopic := range in {
		outTopic := make(map[string]map[string]map[string]interface{}, len(byTopic))
		for topic, byAgent := range byTopic {
			outAgent := make(map[string]map[string]interface{}, len(byAgent))
			for agent, kv := range byAgent {
				copied := make(map[string]interface{}, len(kv))
				for k, v := range kv {
					copied[k] = v
				}
				outAgent[agent] = copied
			}
			outTopic[topic] = outAgent
		}
		out[user] = outTopic
	}
	return out
}

func copyFiles(in map[string]File) map[string]File {
	out := make(map[string]File, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
