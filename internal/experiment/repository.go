package experiment

import (
	"path/filepath"
	"sort"
	"sync"

	apiError "stg-database/internal/errors"
	"stg-database/internal/store"
)

// Repository is the record store: the metadata map and the condition map,
// kept mutually consistent and persisted as whole-file JSON replaces.
type Repository interface {
	Get(key string) (*Experiment, error)
	List() []Experiment
	ListByOwner(owner string) []Experiment
	CountByOwner(owner string) int
	Insert(exp *Experiment, maxPerOwner int) error
	Put(exp *Experiment) error
	Delete(key string) error
	SetFileCount(key string, count int) error
	AdjustFileCount(key string, delta int) error
	Condition(key string, index int) (*Condition, error)
	Conditions(key string) ([]Condition, error)
	ConditionEntries() []ConditionEntry
	AppendCondition(key string, cond *Condition) (int, error)
	PutCondition(key string, index int, cond *Condition) error
	DeleteCondition(key string, index int) error
}

// FileRepository keeps both maps in memory and mirrors every mutation to
// metadata.json / processed_data.json before reporting success.
//
// Locking: keys serializes mutations per experiment, so concurrent
// condition add/delete on the same experiment cannot interleave. mu guards
// the maps themselves. persistMu orders file writes so the snapshot that
// lands last always contains every committed mutation.
type FileRepository struct {
	mu        sync.RWMutex
	keys      keyMutex
	persistMu sync.Mutex

	experiments map[string]*Experiment
	conditions  map[string]*Condition

	metaFile *store.File
	condFile *store.File
}

func NewFileRepository(dataDir string) (*FileRepository, error) {
	r := &FileRepository{
		experiments: make(map[string]*Experiment),
		conditions:  make(map[string]*Condition),
		metaFile:    store.NewFile(filepath.Join(dataDir, "metadata.json")),
		condFile:    store.NewFile(filepath.Join(dataDir, "processed_data.json")),
	}
	if err := r.metaFile.Load(&r.experiments); err != nil {
		return nil, err
	}
	if err := r.condFile.Load(&r.conditions); err != nil {
		return nil, err
	}
	return r, nil
}

// keyMutex hands out one mutex per experiment key.
type keyMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (r *FileRepository) Get(key string) (*Experiment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exp, ok := r.experiments[key]
	if !ok {
		return nil, apiError.NotFound("Experiment not found", nil)
	}
	out := *exp
	return &out, nil
}

func (r *FileRepository) List() []Experiment {
	r.mu.RLock()
	out := make([]Experiment, 0, len(r.experiments))
	for _, exp := range r.experiments {
		out = append(out, *exp)
	}
	r.mu.RUnlock()
	sortExperiments(out)
	return out
}

func (r *FileRepository) ListByOwner(owner string) []Experiment {
	r.mu.RLock()
	var out []Experiment
	for _, exp := range r.experiments {
		if exp.Owner == owner {
			out = append(out, *exp)
		}
	}
	r.mu.RUnlock()
	sortExperiments(out)
	return out
}

// sortExperiments orders for display: by experiment date, key as tiebreak.
func sortExperiments(exps []Experiment) {
	sort.Slice(exps, func(i, j int) bool {
		if exps[i].ExpDate != exps[j].ExpDate {
			return exps[i].ExpDate < exps[j].ExpDate
		}
		return exps[i].Key() < exps[j].Key()
	})
}

func (r *FileRepository) CountByOwner(owner string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, exp := range r.experiments {
		if exp.Owner == owner {
			n++
		}
	}
	return n
}

// Insert adds a new metadata record together with its baseline condition at
// index 0. Fails with DuplicateKey if the key is already taken and with
// QuotaExceeded once the owner holds maxPerOwner experiments (zero or
// negative disables the cap). The cap is checked under the map lock, so
// concurrent inserts for the same owner cannot both slip past it. Neither
// store is modified on failure.
func (r *FileRepository) Insert(exp *Experiment, maxPerOwner int) error {
	key := exp.Key()
	unlock := r.keys.Lock(key)
	defer unlock()

	rec := *exp
	rec.ConditionCount = 1
	rec.FileCount = 0
	baseline := &Condition{Name: BaselineName}

	r.mu.Lock()
	if _, ok := r.experiments[key]; ok {
		r.mu.Unlock()
		return apiError.DuplicateKey("Experiment ID already exists")
	}
	if maxPerOwner > 0 {
		owned := 0
		for _, e := range r.experiments {
			if e.Owner == rec.Owner {
				owned++
			}
		}
		if owned >= maxPerOwner {
			r.mu.Unlock()
			return apiError.QuotaExceeded("You cannot create any more experiments (reached user maximum)")
		}
	}
	r.experiments[key] = &rec
	r.conditions[ConditionKey(key, 0)] = baseline
	r.mu.Unlock()

	if err := r.saveBoth(); err != nil {
		r.mu.Lock()
		delete(r.experiments, key)
		delete(r.conditions, ConditionKey(key, 0))
		r.mu.Unlock()
		return err
	}
	return nil
}

// Put replaces the metadata record for exp.Key(). Structural counters
// (condition and file counts) are preserved from the stored record.
func (r *FileRepository) Put(exp *Experiment) error {
	key := exp.Key()
	unlock := r.keys.Lock(key)
	defer unlock()

	r.mu.Lock()
	old, ok := r.experiments[key]
	if !ok {
		r.mu.Unlock()
		return apiError.NotFound("Experiment not found", nil)
	}
	rec := *exp
	rec.ConditionCount = old.ConditionCount
	rec.FileCount = old.FileCount
	r.experiments[key] = &rec
	r.mu.Unlock()

	if err := r.saveMeta(); err != nil {
		r.mu.Lock()
		r.experiments[key] = old
		r.mu.Unlock()
		return err
	}
	return nil
}

// Delete removes the metadata record and every condition record owned by
// key. The caller removes the attachment directory afterwards.
func (r *FileRepository) Delete(key string) error {
	unlock := r.keys.Lock(key)
	defer unlock()

	r.mu.Lock()
	exp, ok := r.experiments[key]
	if !ok {
		r.mu.Unlock()
		return apiError.NotFound("Experiment not found", nil)
	}
	removed := make([]*Condition, exp.ConditionCount)
	for i := 0; i < exp.ConditionCount; i++ {
		removed[i] = r.conditions[ConditionKey(key, i)]
		delete(r.conditions, ConditionKey(key, i))
	}
	delete(r.experiments, key)
	r.mu.Unlock()

	if err := r.saveBoth(); err != nil {
		r.mu.Lock()
		r.experiments[key] = exp
		for i, cond := range removed {
			r.conditions[ConditionKey(key, i)] = cond
		}
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *FileRepository) SetFileCount(key string, count int) error {
	return r.updateFileCount(key, func(int) int { return count })
}

// AdjustFileCount shifts the cached file count by delta, floored at zero.
func (r *FileRepository) AdjustFileCount(key string, delta int) error {
	return r.updateFileCount(key, func(n int) int {
		n += delta
		if n < 0 {
			n = 0
		}
		return n
	})
}

func (r *FileRepository) updateFileCount(key string, f func(int) int) error {
	unlock := r.keys.Lock(key)
	defer unlock()

	r.mu.Lock()
	exp, ok := r.experiments[key]
	if !ok {
		r.mu.Unlock()
		return apiError.NotFound("Experiment not found", nil)
	}
	old := exp.FileCount
	exp.FileCount = f(old)
	r.mu.Unlock()

	if err := r.saveMeta(); err != nil {
		r.mu.Lock()
		if cur, ok := r.experiments[key]; ok {
			cur.FileCount = old
		}
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *FileRepository) Condition(key string, index int) (*Condition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.experiments[key]; !ok {
		return nil, apiError.NotFound("Experiment not found", nil)
	}
	cond, ok := r.conditions[ConditionKey(key, index)]
	if !ok {
		return nil, apiError.NotFound("Condition not found", nil)
	}
	out := *cond
	return &out, nil
}

// Conditions returns the experiment's conditions ordered by index.
func (r *FileRepository) Conditions(key string) ([]Condition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exp, ok := r.experiments[key]
	if !ok {
		return nil, apiError.NotFound("Experiment not found", nil)
	}
	out := make([]Condition, 0, exp.ConditionCount)
	for i := 0; i < exp.ConditionCount; i++ {
		cond, ok := r.conditions[ConditionKey(key, i)]
		if !ok {
			return nil, apiError.Internal(nil)
		}
		out = append(out, *cond)
	}
	return out, nil
}

// ConditionEntry pairs a processed-data store key with its record, for
// whole-store exports.
type ConditionEntry struct {
	Key       string
	Condition Condition
}

// ConditionEntries returns every condition record ordered by store key.
func (r *FileRepository) ConditionEntries() []ConditionEntry {
	r.mu.RLock()
	out := make([]ConditionEntry, 0, len(r.conditions))
	for key, cond := range r.conditions {
		out = append(out, ConditionEntry{Key: key, Condition: *cond})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// AppendCondition inserts cond at the next free index and bumps the
// condition count. Returns the assigned index.
func (r *FileRepository) AppendCondition(key string, cond *Condition) (int, error) {
	unlock := r.keys.Lock(key)
	defer unlock()

	rec := *cond

	r.mu.Lock()
	exp, ok := r.experiments[key]
	if !ok {
		r.mu.Unlock()
		return 0, apiError.NotFound("Experiment not found", nil)
	}
	index := exp.ConditionCount
	r.conditions[ConditionKey(key, index)] = &rec
	exp.ConditionCount = index + 1
	r.mu.Unlock()

	if err := r.saveBoth(); err != nil {
		r.mu.Lock()
		delete(r.conditions, ConditionKey(key, index))
		if cur, ok := r.experiments[key]; ok {
			cur.ConditionCount = index
		}
		r.mu.Unlock()
		return 0, err
	}
	return index, nil
}

// PutCondition replaces the measurement data at index. The stored condition
// name is preserved; only measurement fields change.
func (r *FileRepository) PutCondition(key string, index int, cond *Condition) error {
	unlock := r.keys.Lock(key)
	defer unlock()

	r.mu.Lock()
	exp, ok := r.experiments[key]
	if !ok {
		r.mu.Unlock()
		return apiError.NotFound("Experiment not found", nil)
	}
	if index < 0 || index >= exp.ConditionCount {
		r.mu.Unlock()
		return apiError.NotFound("Condition not found", nil)
	}
	old, ok := r.conditions[ConditionKey(key, index)]
	if !ok {
		r.mu.Unlock()
		return apiError.NotFound("Condition not found", nil)
	}
	rec := *cond
	rec.Name = old.Name
	r.conditions[ConditionKey(key, index)] = &rec
	r.mu.Unlock()

	if err := r.saveConditions(); err != nil {
		r.mu.Lock()
		r.conditions[ConditionKey(key, index)] = old
		r.mu.Unlock()
		return err
	}
	return nil
}

// DeleteCondition removes the condition at index and compacts the ones
// after it so indices stay dense. Index 0 (baseline) is protected.
func (r *FileRepository) DeleteCondition(key string, index int) error {
	unlock := r.keys.Lock(key)
	defer unlock()

	r.mu.Lock()
	exp, ok := r.experiments[key]
	if !ok {
		r.mu.Unlock()
		return apiError.NotFound("Experiment not found", nil)
	}
	if index == 0 {
		r.mu.Unlock()
		return apiError.ProtectedCondition("You cannot delete the baseline condition. Delete the entire experiment.")
	}
	count := exp.ConditionCount
	if index < 0 || index >= count {
		r.mu.Unlock()
		return apiError.NotFound("Condition not found", nil)
	}

	// snapshot for rollback if the store write fails
	before := make([]*Condition, count)
	for i := 0; i < count; i++ {
		before[i] = r.conditions[ConditionKey(key, i)]
	}

	// ascending shift: each source slot is read before it is overwritten
	for i := index + 1; i < count; i++ {
		r.conditions[ConditionKey(key, i-1)] = r.conditions[ConditionKey(key, i)]
	}
	delete(r.conditions, ConditionKey(key, count-1))
	exp.ConditionCount = count - 1
	r.mu.Unlock()

	if err := r.saveBoth(); err != nil {
		r.mu.Lock()
		for i, cond := range before {
			r.conditions[ConditionKey(key, i)] = cond
		}
		if cur, ok := r.experiments[key]; ok {
			cur.ConditionCount = count
		}
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *FileRepository) saveMeta() error {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metaFile.Save(r.experiments)
}

func (r *FileRepository) saveConditions() error {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.condFile.Save(r.conditions)
}

func (r *FileRepository) saveBoth() error {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.metaFile.Save(r.experiments); err != nil {
		return err
	}
	return r.condFile.Save(r.conditions)
}
