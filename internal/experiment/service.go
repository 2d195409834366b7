package experiment

import (
	"fmt"

	apiError "stg-database/internal/errors"
)

// AttachmentRemover is the piece of the attachment layer the record store
// needs for the experiment-deletion cascade.
type AttachmentRemover interface {
	Remove(key string) error
}

// Service defines the record-store business logic
type Service interface {
	Create(owner string, exp *Experiment) (string, error)
	Get(key string) (*Experiment, error)
	List(owner string) []Experiment
	CountByOwner(owner string) int
	Delete(key string) error
	UpdateMetadata(key string, exp *Experiment) error
	UpdateTags(key string, nerves, neurons, flags []string) error
	AddCondition(key, name string) (int, error)
	GetCondition(key string, index int) (*Condition, error)
	Conditions(key string) ([]Condition, error)
	UpdateCondition(key string, index int, cond *Condition) error
	DeleteCondition(key string, index int) error
}

// DefaultService implements Service
type DefaultService struct {
	repository         Repository
	attachments        AttachmentRemover
	maxUserExperiments int
}

// NewService creates a new experiment service
func NewService(repository Repository, attachments AttachmentRemover, maxUserExperiments int) Service {
	return &DefaultService{
		repository:         repository,
		attachments:        attachments,
		maxUserExperiments: maxUserExperiments,
	}
}

// Create registers a new experiment for owner. The record starts with one
// baseline condition and an empty attachment directory.
func (s *DefaultService) Create(owner string, exp *Experiment) (string, error) {
	if !ValidName(exp.ExpID, 1, 20) {
		return "", apiError.InvalidName("Experiment ID must be 1-20 alphanumeric characters (underscore ok)")
	}
	exp.Owner = owner
	if err := s.repository.Insert(exp, s.maxUserExperiments); err != nil {
		return "", err
	}
	return exp.Key(), nil
}

func (s *DefaultService) Get(key string) (*Experiment, error) {
	return s.repository.Get(key)
}

// List returns experiments visible to owner, ordered by experiment date.
// An empty owner returns everything (admin view).
func (s *DefaultService) List(owner string) []Experiment {
	if owner == "" {
		return s.repository.List()
	}
	return s.repository.ListByOwner(owner)
}

func (s *DefaultService) CountByOwner(owner string) int {
	return s.repository.CountByOwner(owner)
}

// Delete removes the experiment, its conditions, and, once both stores are
// persisted, the attachment directory.
func (s *DefaultService) Delete(key string) error {
	if err := s.repository.Delete(key); err != nil {
		return err
	}
	if err := s.attachments.Remove(key); err != nil {
		return apiError.Internal(fmt.Errorf("removing attachment directory for %s: %w", key, err))
	}
	return nil
}

func (s *DefaultService) UpdateMetadata(key string, exp *Experiment) error {
	old, err := s.repository.Get(key)
	if err != nil {
		return err
	}
	// identity and tag strings are not part of the metadata form
	exp.Owner = old.Owner
	exp.ExpID = old.ExpID
	exp.Nerves = old.Nerves
	exp.Neurons = old.Neurons
	exp.Flags = old.Flags
	return s.repository.Put(exp)
}

// UpdateTags replaces the three tag strings. Tags outside the fixed
// vocabularies are rejected.
func (s *DefaultService) UpdateTags(key string, nerves, neurons, flags []string) error {
	exp, err := s.repository.Get(key)
	if err != nil {
		return err
	}
	nervesStr, err := joinTags(nerves, NerveTags, "nerve")
	if err != nil {
		return err
	}
	neuronsStr, err := joinTags(neurons, NeuronTags, "neuron")
	if err != nil {
		return err
	}
	flagsStr, err := joinTags(flags, FlagTags, "flag")
	if err != nil {
		return err
	}
	exp.Nerves = nervesStr
	exp.Neurons = neuronsStr
	exp.Flags = flagsStr
	return s.repository.Put(exp)
}

func joinTags(tags, vocabulary []string, label string) (string, error) {
	out := ""
	for i, tag := range tags {
		if !contains(vocabulary, tag) {
			return "", apiError.InvalidField("Unknown "+label+" tag: "+tag, nil)
		}
		if i > 0 {
			out += TagSeparator
		}
		out += tag
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// AddCondition appends a named condition at the next free index.
func (s *DefaultService) AddCondition(key, name string) (int, error) {
	if !ValidName(name, 2, 20) {
		return 0, apiError.InvalidName("Condition name must be 2-20 alphanumeric characters (underscore ok)")
	}
	return s.repository.AppendCondition(key, &Condition{Name: name})
}

func (s *DefaultService) GetCondition(key string, index int) (*Condition, error) {
	return s.repository.Condition(key, index)
}

func (s *DefaultService) Conditions(key string) ([]Condition, error) {
	return s.repository.Conditions(key)
}

func (s *DefaultService) UpdateCondition(key string, index int, cond *Condition) error {
	if err := cond.Validate(); err != nil {
		return apiError.InvalidField(err.Error(), nil)
	}
	return s.repository.PutCondition(key, index, cond)
}

func (s *DefaultService) DeleteCondition(key string, index int) error {
	return s.repository.DeleteCondition(key, index)
}
