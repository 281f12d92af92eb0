package fleet

import (
	"context"
	"fmt"
	"sync"
)

// OperationResult is the outcome of one device's share of a fan-out.
// Exactly one of Data and Error is meaningful, keyed on Success.
type OperationResult struct {
	DeviceID   int    `json:"device_id"`
	DeviceName string `json:"device_name"`
	Success    bool   `json:"success"`
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Dispatcher fans a single operation out across fleet sessions
// concurrently. Results are strictly isolated per device: one terminal
// failing, hanging, or panicking never disturbs the others' results.
type Dispatcher struct {
	supervisor *Supervisor
	logger     Logger
}

// NewDispatcher creates a dispatcher over the supervisor's sessions.
func NewDispatcher(supervisor *Supervisor, logger Logger) *Dispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{supervisor: supervisor, logger: logger}
}

// DispatchAll runs the operation on every managed device concurrently
// and returns one result per device, keyed by device id.
func (d *Dispatcher) DispatchAll(ctx context.Context, operation string, args ...any) map[int]OperationResult {
	return d.dispatch(ctx, d.supervisor.DeviceIDs(), operation, args...)
}

// DispatchSelected runs the operation on the given device ids only.
// Ids not present in the fleet are silently omitted from the result
// map; their absence is the signal.
func (d *Dispatcher) DispatchSelected(ctx context.Context, deviceIDs []int, operation string, args ...any) map[int]OperationResult {
	return d.dispatch(ctx, deviceIDs, operation, args...)
}

func (d *Dispatcher) dispatch(ctx context.Context, deviceIDs []int, operation string, args ...any) map[int]OperationResult {
	var (
		mu      sync.Mutex
		results = make(map[int]OperationResult, len(deviceIDs))
		wg      sync.WaitGroup
	)

	for _, id := range deviceIDs {
		sess, err := d.supervisor.Session(id)
		if err != nil {
			d.logger.Debug("skipping unknown device in dispatch",
				"device_id", id,
				"operation", operation,
			)
			continue
		}

		wg.Add(1)
		go func(id int, sess Session) {
			defer wg.Done()
			result := d.runOne(ctx, id, sess, operation, args...)
			mu.Lock()
			results[id] = result
			mu.Unlock()
		}(id, sess)
	}

	wg.Wait()
	return results
}

// runOne executes the operation against a single session, converting
// every failure mode, panics included, into a failed result.
func (d *Dispatcher) runOne(ctx context.Context, id int, sess Session, operation string, args ...any) (result OperationResult) {
	device := sess.Device()
	result = OperationResult{
		DeviceID:   id,
		DeviceName: device.Name,
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("operation panicked",
				"device_id", id,
				"operation", operation,
				"panic", fmt.Sprint(r),
			)
			result.Success = false
			result.Data = nil
			result.Error = fmt.Sprintf("internal error: %v", r)
		}
	}()

	data, err := sess.Invoke(ctx, operation, args...)
	if err != nil {
		d.logger.Warn("operation failed",
			"device_id", id,
			"device", device.Name,
			"operation", operation,
			"error", err,
		)
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.Data = data
	return result
}
