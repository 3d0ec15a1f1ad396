package withdraw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ohmynofan/mapp-task-bot/internal/domain/model"
	"github.com/ohmynofan/mapp-task-bot/internal/platform/logger"
	"github.com/ohmynofan/mapp-task-bot/pkg/utils"
)

var (
	ErrInvalidAmount  = errors.New("withdrawal amount must be greater than zero")
	ErrMissingAccount = errors.New("withdrawal method and account are required")
)

type Gate interface {
	Allow() error
}

type Backend interface {
	Withdraw(ctx context.Context, req model.Withdrawal) (model.WithdrawResult, error)
}

// BalanceSink receives the balance the server reports after a withdrawal.
type BalanceSink interface {
	SetBalance(balance decimal.Decimal)
}

type Service struct {
	backend Backend
	guard   Gate
	sink    BalanceSink
	log     *logger.ClassLogger
}

func NewService(backend Backend, guard Gate, sink BalanceSink) *Service {
	s := &Service{backend: backend, guard: guard, sink: sink}
	s.log = logger.NewLogger(s)
	return s
}

// Open checks whether the withdrawal flow may be shown at all.
func (s *Service) Open() error {
	if s.guard == nil {
		return nil
	}
	if err := s.guard.Allow(); err != nil {
		s.log.Log(model.UserMessage(err))
		return err
	}
	return nil
}

func (s *Service) Submit(ctx context.Context, req model.Withdrawal) (model.WithdrawResult, error) {
	if err := s.Open(); err != nil {
		return model.WithdrawResult{}, err
	}
	req.Method = strings.TrimSpace(req.Method)
	req.Account = strings.TrimSpace(req.Account)
	if req.Method == "" || req.Account == "" {
		return model.WithdrawResult{}, ErrMissingAccount
	}
	if !req.Amount.IsPositive() {
		return model.WithdrawResult{}, ErrInvalidAmount
	}

	s.log.Log(fmt.Sprintf("Requesting withdrawal of %s via %s", utils.FormatUSD(req.Amount), req.Method))
	res, err := s.backend.Withdraw(ctx, req)
	if err != nil {
		s.log.Log(fmt.Sprintf("Withdrawal failed: %s", model.UserMessage(err)))
		return model.WithdrawResult{}, err
	}

	if s.sink != nil {
		s.sink.SetBalance(res.Balance)
	}
	msg := res.Message
	if msg == "" {
		msg = "Withdrawal submitted"
	}
	s.log.Log(fmt.Sprintf("%s, balance %s", msg, utils.FormatUSD(res.Balance)))
	return res, nil
}
