package exchange

import "errors"

var (
	ErrInsufficientBalance   = errors.New("exchange: insufficient balance")
	ErrOrderNotFound         = errors.New("exchange: order does not exist")
	ErrNotOwner              = errors.New("exchange: not the owner")
	ErrAlreadyFilled         = errors.New("exchange: order has already been filled")
	ErrAlreadyCancelled      = errors.New("exchange: order has been cancelled")
	ErrSelfFill              = errors.New("exchange: cannot fill own order")
	ErrNegativeAmount        = errors.New("exchange: negative amount")
	ErrNotDeployed           = errors.New("exchange: not deployed")
	ErrInsufficientLiquidity = errors.New("flashloan: insufficient funds to loan")
	ErrReentrantLoan         = errors.New("flashloan: reentrant loan")
	ErrNotBorrower           = errors.New("flashloan: caller cannot receive loans")
	ErrRepaymentFailed       = errors.New("flashloan: repayment failed")
)
