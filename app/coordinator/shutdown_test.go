package coordinator_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/hiverun/hived/app/coordinator"
	"github.com/hiverun/hived/app/coordinator/mocks"
)

func TestController_Trigger(t *testing.T) {
	st := &mocks.Store{}
	sup := &mocks.Supervisor{}

	sup.On("StopAll", mock.Anything).Once()
	st.On("RecordState", "STOPPED", "completed", 2).Once()
	st.On("Close").Return(nil).Once()

	ctrl := coordinator.Controller{Supervisor: sup, Store: st, Workers: 2}
	ctrl.Trigger("completed")

	st.AssertExpectations(t)
	sup.AssertExpectations(t)
}

func TestController_TriggerOnce(t *testing.T) {
	st := &mocks.Store{}
	sup := &mocks.Supervisor{}

	// expectations are Once(), a second teardown would fail them
	sup.On("StopAll", mock.Anything).Once()
	st.On("RecordState", "STOPPED", "failed", 0).Once()
	st.On("Close").Return(nil).Once()

	ctrl := coordinator.Controller{Supervisor: sup, Store: st}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctrl.Trigger("failed")
		}()
	}
	wg.Wait()

	st.AssertExpectations(t)
	sup.AssertExpectations(t)
}

func TestController_TriggerCloseError(t *testing.T) {
	st := &mocks.Store{}
	sup := &mocks.Supervisor{}

	sup.On("StopAll", mock.Anything).Once()
	st.On("RecordState", "STOPPED", "completed", 0).Once()
	st.On("Close").Return(errors.New("already closed")).Once()

	ctrl := coordinator.Controller{Supervisor: sup, Store: st}
	ctrl.Trigger("completed") // close error is logged, not propagated

	st.AssertExpectations(t)
}
