package payment

import "fmt"

// State — состояние платёжного диалога. В отличие от статуса счёта в базе,
// это состояние разговора с плательщиком: оно живёт, пока пользователь
// проходит оплату, и управляет тем, какие действия ему доступны.
type State string

const (
	StateInitial State = "payment:initial"

	StatePending    State = "payment:pending"
	StateValidation State = "payment:validation"
	StateCreated    State = "payment:created"

	StateProcessing       State = "payment:processing"
	StateAwaitingCallback State = "payment:awaiting_callback"

	StateCompleted State = "payment:completed"
	StateConfirmed State = "payment:confirmed"

	StateFailed        State = "payment:failed"
	StateCancelled     State = "payment:cancelled"
	StateExpired       State = "payment:expired"
	StateRefundPending State = "payment:refund_pending"
	StateRefunded      State = "payment:refunded"

	StateFinished State = "payment:finished"
)

// Event — событие, двигающее платёж между состояниями.
type Event string

const (
	EventCreatePayment   Event = "create_payment"
	EventValidatePayment Event = "validate_payment"
	EventValidationOK    Event = "validation_passed"
	EventValidationFail  Event = "validation_failed"

	EventStartProcessing  Event = "start_processing"
	EventPaymentInitiated Event = "payment_initiated"

	EventSuccessCallback Event = "payment_success_callback"
	EventFailureCallback Event = "payment_failure_callback"
	EventConfirmPayment  Event = "confirm_payment"

	EventCancelPayment Event = "cancel_payment"
	EventExpired       Event = "payment_expired"

	EventInitiateRefund  Event = "initiate_refund"
	EventRefundCompleted Event = "refund_completed"
	EventRefundFailed    Event = "refund_failed"

	EventFinish Event = "finish"
	EventReset  Event = "reset"
)

// transitions — полная таблица переходов. Отсутствие пары (state, event)
// означает запрещённый переход.
var transitions = map[State]map[Event]State{
	StateInitial: {
		EventCreatePayment: StatePending,
	},
	StatePending: {
		EventValidatePayment: StateValidation,
		EventCancelPayment:   StateCancelled,
	},
	StateValidation: {
		EventValidationOK:   StateCreated,
		EventValidationFail: StateFailed,
	},
	StateCreated: {
		EventStartProcessing: StateProcessing,
		EventCancelPayment:   StateCancelled,
	},
	StateProcessing: {
		EventPaymentInitiated: StateAwaitingCallback,
		EventCancelPayment:    StateCancelled,
	},
	StateAwaitingCallback: {
		EventSuccessCallback: StateCompleted,
		EventFailureCallback: StateFailed,
		EventExpired:         StateExpired,
	},
	StateCompleted: {
		EventConfirmPayment: StateConfirmed,
	},
	StateConfirmed: {
		EventFinish:         StateFinished,
		EventInitiateRefund: StateRefundPending,
	},
	StateRefundPending: {
		EventRefundCompleted: StateRefunded,
		EventRefundFailed:    StateConfirmed,
	},
	StateRefunded: {
		EventFinish: StateFinished,
	},
	StateFailed: {
		EventReset: StateInitial,
	},
	StateCancelled: {
		EventReset: StateInitial,
	},
	StateExpired: {
		EventReset: StateInitial,
	},
	StateFinished: {},
}

// Next возвращает состояние после события. Запрещённый переход — ошибка,
// состояние при этом не меняется.
func (s State) Next(event Event) (State, error) {
	allowed, ok := transitions[s]
	if !ok {
		return s, fmt.Errorf("unknown payment state %q", s)
	}
	next, ok := allowed[event]
	if !ok {
		return s, fmt.Errorf("event %q is not allowed in state %q", event, s)
	}
	return next, nil
}

// CanFire сообщает, разрешено ли событие в текущем состоянии.
func (s State) CanFire(event Event) bool {
	_, err := s.Next(event)
	return err == nil
}

// IsFinal — достигнут ли конец жизненного цикла платежа.
func (s State) IsFinal() bool {
	return s == StateFinished
}

// IsError — оказался ли платёж в состоянии ошибки, из которого возможен
// только сброс.
func (s State) IsError() bool {
	return s == StateFailed || s == StateCancelled || s == StateExpired
}

// IsSuccess — прошёл ли платёж успешно (оплата получена, возврат не начат).
func (s State) IsSuccess() bool {
	return s == StateCompleted || s == StateConfirmed
}
