package audit

// RunState is the authoritative, persistable record of one validation pass.
// It is owned exclusively by the scheduler's event loop; external consumers
// only ever see derived snapshots (Progress, RunRecord, Report).
//
// Invariants held by the mutators:
//   - an item id is in at most one of pending, inFlight, or a finalized phase;
//   - every id in errors is (or becomes, at context removal) processed;
//   - seenURLs only grows during a run.
type RunState struct {
	pending   []BookmarkItem
	inFlight  map[string]BookmarkItem // worker context id → item
	seenURLs  map[string]struct{}
	items     map[string]ItemState // item id → tagged state
	ignored   []string
	errors    []ErrorRecord
	successes []SuccessInfo
	total     int
	processed int
	phase     RunPhase
}

// newRunState creates the state for a fresh or resumed pass. Processed ids
// and collected errors from the record are carried over so a resumed run
// neither re-dispatches nor double-counts them.
func newRunState(record RunRecord) *RunState {
	s := &RunState{
		inFlight: make(map[string]BookmarkItem),
		seenURLs: make(map[string]struct{}),
		items:    make(map[string]ItemState),
		phase:    RunIdle,
	}
	for _, rec := range record.Errors {
		s.items[rec.ID] = ItemState{Phase: PhaseError, Kind: rec.Kind}
		s.errors = append(s.errors, rec)
	}
	for id := range record.Processed {
		if _, ok := s.items[id]; !ok {
			s.items[id] = ItemState{Phase: PhaseSuccess}
		}
	}
	s.processed = len(record.Processed)
	return s
}

// processedIDs returns the set of ids the enumerator must skip on resume.
func (s *RunState) processedIDs() map[string]bool {
	ids := make(map[string]bool, len(s.items))
	for id, st := range s.items {
		if st.Finalized() {
			ids[id] = true
		}
	}
	return ids
}

// applyEnumeration populates the queue, the ignored set and the duplicate
// verdicts from a completed traversal.
func (s *RunState) applyEnumeration(enum enumeration) {
	s.total = enum.total
	s.ignored = append(s.ignored, enum.ignored...)
	for url := range enum.seenURLs {
		s.seenURLs[url] = struct{}{}
	}
	for _, item := range enum.checkable {
		s.items[item.ID] = ItemState{Phase: PhasePending}
		s.pending = append(s.pending, item)
	}
	for _, item := range enum.duplicates {
		s.markDuplicate(item)
	}
}

// markDuplicate routes a repeat discovery straight to its terminal verdict;
// it never occupies a worker slot.
func (s *RunState) markDuplicate(item BookmarkItem) {
	if st, ok := s.items[item.ID]; ok && st.Finalized() {
		return
	}
	s.items[item.ID] = ItemState{Phase: PhaseError, Kind: KindDuplicate}
	s.errors = append(s.errors, errorRecord(item, KindDuplicate))
	s.processed++
}

// popPending removes and returns the head of the FIFO queue.
func (s *RunState) popPending() (BookmarkItem, bool) {
	if len(s.pending) == 0 {
		return BookmarkItem{}, false
	}
	item := s.pending[0]
	s.pending = s.pending[1:]
	return item, true
}

// dropItem forgets an item that could not be dispatched. It is neither
// processed nor errored this run; a later run will pick it up again.
func (s *RunState) dropItem(item BookmarkItem) {
	delete(s.items, item.ID)
}

// beginFlight records the item as owned by the given worker context.
func (s *RunState) beginFlight(contextID string, item BookmarkItem) {
	s.items[item.ID] = ItemState{Phase: PhaseInFlight}
	s.inFlight[contextID] = item
}

// itemByContext resolves the item owned by a context, if the context is
// still known.
func (s *RunState) itemByContext(contextID string) (BookmarkItem, bool) {
	item, ok := s.inFlight[contextID]
	return item, ok
}

// contextByURL finds the in-flight context currently loading the given URL.
func (s *RunState) contextByURL(url string) (string, bool) {
	for id, item := range s.inFlight {
		if item.URL == url {
			return id, true
		}
	}
	return "", false
}

// recordVerdict applies the single terminal verdict for an in-flight item.
// A second verdict for the same item is a no-op; the first one wins.
func (s *RunState) recordVerdict(contextID string, success bool, kind ErrorKind, info SuccessInfo) bool {
	item, ok := s.inFlight[contextID]
	if !ok {
		return false
	}
	if st := s.items[item.ID]; st.Finalized() {
		return false
	}
	if success {
		s.items[item.ID] = ItemState{Phase: PhaseSuccess}
		s.successes = append(s.successes, info)
	} else {
		s.items[item.ID] = ItemState{Phase: PhaseError, Kind: kind}
		s.errors = append(s.errors, errorRecord(item, kind))
	}
	return true
}

// completeContext handles the terminal slot event: the context is gone and
// its item counts as processed. Unknown context ids are ignored, which
// guards against duplicate removal notifications.
func (s *RunState) completeContext(contextID string) (BookmarkItem, bool) {
	item, ok := s.inFlight[contextID]
	if !ok {
		return BookmarkItem{}, false
	}
	delete(s.inFlight, contextID)
	if st := s.items[item.ID]; !st.Finalized() {
		// Removed without a verdict (external interference); count the load
		// as successful rather than losing the item.
		s.items[item.ID] = ItemState{Phase: PhaseSuccess}
	}
	s.processed++
	return item, true
}

// abandonFlights empties the in-flight table for pause or cancel. Items
// without a verdict revert to pending so a resumed run re-enumerates them;
// items that were finalized but not yet removed still count as processed so
// their recorded verdict is not repeated.
func (s *RunState) abandonFlights() []string {
	contexts := make([]string, 0, len(s.inFlight))
	for contextID, item := range s.inFlight {
		contexts = append(contexts, contextID)
		if st := s.items[item.ID]; st.Finalized() {
			s.processed++
		} else {
			s.items[item.ID] = ItemState{Phase: PhasePending}
		}
	}
	s.inFlight = make(map[string]BookmarkItem)
	return contexts
}

// drained reports whether both the queue and the in-flight table are empty,
// the condition for transitioning the run to finished.
func (s *RunState) drained() bool {
	return len(s.pending) == 0 && len(s.inFlight) == 0
}

// progress derives the read-only projection for statistics consumers.
func (s *RunState) progress() Progress {
	return computeProgress(s.total, len(s.ignored), s.processed, len(s.pending), len(s.inFlight), len(s.errors))
}

// record projects the state into its durable form.
func (s *RunState) record() RunRecord {
	rec := RunRecord{
		Total:     s.total,
		Ignored:   append([]string(nil), s.ignored...),
		Processed: make(map[string]bool),
		Errors:    append([]ErrorRecord(nil), s.errors...),
	}
	for id, st := range s.items {
		if st.Finalized() {
			rec.Processed[id] = true
		}
	}
	return rec
}

func errorRecord(item BookmarkItem, kind ErrorKind) ErrorRecord {
	return ErrorRecord{
		ID:    item.ID,
		Title: item.Title,
		URL:   item.URL,
		Path:  item.Path,
		Kind:  kind,
	}
}
