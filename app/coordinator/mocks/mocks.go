// Package mocks provides mocked collaborators for coordinator tests.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/hiverun/hived/app/config"
	"github.com/hiverun/hived/app/coordinator"
	"github.com/hiverun/hived/app/supervisor"
)

// Store is a mock of coordinator.Store
type Store struct {
	mock.Mock
}

func (m *Store) RecordState(state, queenStatus string, workers int) {
	m.Called(state, queenStatus, workers)
}

func (m *Store) RecordInteraction(from, to, message, taskID string) {
	m.Called(from, to, message, taskID)
}

func (m *Store) RecordTask(taskID, description, assignedTo, status, result string) {
	m.Called(taskID, description, assignedTo, status, result)
}

func (m *Store) RecordMetric(agentID, taskID string, execTime time.Duration, tokens int64, success bool) {
	m.Called(agentID, taskID, execTime, tokens, success)
}

func (m *Store) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Supervisor is a mock of coordinator.Supervisor
type Supervisor struct {
	mock.Mock
}

func (m *Supervisor) ReapStale() {
	m.Called()
}

func (m *Supervisor) Start(ctx context.Context, services []config.Service) []*supervisor.Handle {
	args := m.Called(ctx, services)
	if v := args.Get(0); v != nil {
		return v.([]*supervisor.Handle)
	}
	return nil
}

func (m *Supervisor) WaitReady(ctx context.Context, handles []*supervisor.Handle, timeout time.Duration) error {
	args := m.Called(ctx, handles, timeout)
	return args.Error(0)
}

func (m *Supervisor) StopAll(handles []*supervisor.Handle) {
	m.Called(handles)
}

func (m *Supervisor) Sample(handles []*supervisor.Handle) []supervisor.Usage {
	args := m.Called(handles)
	if v := args.Get(0); v != nil {
		return v.([]supervisor.Usage)
	}
	return nil
}

// Delegate is a mock of coordinator.Delegate
type Delegate struct {
	mock.Mock
}

func (m *Delegate) Run(ctx context.Context, req coordinator.DelegateRequest) (int, error) {
	args := m.Called(ctx, req)
	return args.Int(0), args.Error(1)
}

// Notifier is a mock of coordinator.Notifier
type Notifier struct {
	mock.Mock
}

func (m *Notifier) Send(ctx context.Context, subj, text string) error {
	args := m.Called(ctx, subj, text)
	return args.Error(0)
}

// ConditionChecker is a mock of coordinator.ConditionChecker
type ConditionChecker struct {
	mock.Mock
}

func (m *ConditionChecker) Check(pf config.Preflight) (bool, string) {
	args := m.Called(pf)
	return args.Bool(0), args.String(1)
}
