package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"gorates/internal/errors"
	"gorates/ports"
)

// Batch item kinds
const (
	KindConfint          = "poisson.confint"
	KindTest             = "poisson.test"
	KindTest2Indep       = "poisson2.test"
	KindEtest2Indep      = "poisson2.etest"
	KindTost2Indep       = "poisson2.tost"
	KindConfint2Indep    = "poisson2.confint"
	KindPowerRatio       = "power.ratio"
	KindPowerEquivalence = "power.equivalence"
	KindPowerDiff        = "power.diff"
	KindDispersion       = "dispersion"
)

type batchHandler func(s *RateService, ctx context.Context, payload json.RawMessage) (interface{}, error)

// handle decodes a payload into the request type of fn and runs it
func handle[Req any, Resp any](fn func(*RateService, context.Context, Req) (*Resp, error)) batchHandler {
	return func(s *RateService, ctx context.Context, payload json.RawMessage) (interface{}, error) {
		var req Req
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, errors.InvalidInput(fmt.Sprintf("invalid payload: %v", err))
		}
		resp, err := fn(s, ctx, req)
		if err != nil {
			return nil, err
		}
		return resp, nil
	}
}

var batchHandlers = map[string]batchHandler{
	KindConfint:          handle((*RateService).ConfintPoisson),
	KindTest:             handle((*RateService).TestPoisson),
	KindTest2Indep:       handle((*RateService).TestPoisson2Indep),
	KindEtest2Indep:      handle((*RateService).EtestPoisson2Indep),
	KindTost2Indep:       handle((*RateService).TostPoisson2Indep),
	KindConfint2Indep:    handle((*RateService).ConfintPoisson2Indep),
	KindPowerRatio:       handle((*RateService).PowerRatio),
	KindPowerEquivalence: handle((*RateService).PowerEquivalence),
	KindPowerDiff:        handle((*RateService).PowerDiff),
	KindDispersion:       handle((*RateService).EstimateDispersion),
}

// Batch evaluates the items concurrently, at most Batch.Concurrency at a
// time. Item failures are reported per item; only cancellation fails the
// whole batch.
func (s *RateService) Batch(ctx context.Context, req ports.BatchRequest) (*ports.BatchResponse, error) {
	if len(req.Items) == 0 {
		return nil, errors.InvalidInput("batch has no items")
	}
	if limit := s.config.Batch.MaxItems; limit > 0 && len(req.Items) > limit {
		return nil, errors.InvalidInput(fmt.Sprintf("batch has %d items, limit is %d", len(req.Items), limit))
	}

	sem := semaphore.NewWeighted(s.config.Batch.Concurrency)
	results := make([]ports.BatchResult, len(req.Items))
	var wg sync.WaitGroup

	s.logger.Debug("batch of %d items, concurrency %d", len(req.Items), s.config.Batch.Concurrency)

	for i, item := range req.Items {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, errors.Wrapf(err, "batch canceled after %d of %d items", i, len(req.Items))
		}
		wg.Add(1)
		go func(i int, item ports.BatchItem) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = s.runItem(ctx, i, item)
		}(i, item)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(err, "batch canceled with %d items", len(req.Items))
	}
	return &ports.BatchResponse{Results: results}, nil
}

func (s *RateService) runItem(ctx context.Context, index int, item ports.BatchItem) (result ports.BatchResult) {
	result = ports.BatchResult{Index: index, Kind: item.Kind}

	handler, ok := batchHandlers[item.Kind]
	if !ok {
		result.Error = errorBody(errors.InvalidInput(fmt.Sprintf("unknown batch kind %q", item.Kind)))
		return result
	}
	if err := ctx.Err(); err != nil {
		result.Error = errorBody(err)
		return result
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("batch item %d (%s) panicked: %v", index, item.Kind, r)
			result = ports.BatchResult{Index: index, Kind: item.Kind, Error: errorBody(errors.InternalError(fmt.Sprintf("batch item %d failed unexpectedly", index)))}
		}
	}()

	resp, err := handler(s, ctx, item.Payload)
	if err != nil {
		s.logger.Debug("batch item %d (%s) failed: %v", index, item.Kind, err)
		result.Error = errorBody(err)
		return result
	}
	result.Result = resp
	return result
}
