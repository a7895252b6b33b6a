package config

import "fmt"

// StorageKeyStruct namespaces the keys used in the persistent session
// store so every component addresses the same entry for an exam.
type StorageKeyStruct struct{}

// ExamSessionKey returns the snapshot key for an exam. One active
// snapshot exists per exam id; the store is never shared across tabs or
// parallel sessions.
func (r *StorageKeyStruct) ExamSessionKey(examID string) string {
	return fmt.Sprintf("exam_session:%s", examID)
}

// CredentialsKey returns the key under which the bearer token is kept.
func (r *StorageKeyStruct) CredentialsKey() string {
	return "credentials"
}

var StorageKey = &StorageKeyStruct{}
