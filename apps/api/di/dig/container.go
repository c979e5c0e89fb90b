package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/nexaric/portal/apps/api/echo"
	"github.com/nexaric/portal/core"
	"github.com/nexaric/portal/core/identity"
	"github.com/nexaric/portal/core/payment"
	authsvc "github.com/nexaric/portal/services/auth"
	"github.com/nexaric/portal/services/checkout"
	emailsvc "github.com/nexaric/portal/services/email"
	"github.com/nexaric/portal/services/events"
	logsvc "github.com/nexaric/portal/services/logger"
	"github.com/nexaric/portal/services/paymentapi"
	"github.com/nexaric/portal/storage/database"
	inmemdb "github.com/nexaric/portal/storage/database/inmem"
	sqlxrepos "github.com/nexaric/portal/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Storage holds the ledger repository and, unless it lives in memory, its database.
type Storage struct {
	DB       *sqlx.DB
	Payments payment.Repository
}

func (s *Storage) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) *Storage {
	if conf.Database.InMemory {
		loggerParam.Logger.Warn("payment ledger kept in memory")
		return &Storage{Payments: inmemdb.NewPaymentRepository(inmemdb.Open())}
	}

	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(context.Background(), conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return &Storage{DB: db, Payments: sqlxrepos.NewPaymentRepository(db)}
}

func newPaymentRepository(s *Storage) payment.Repository {
	return s.Payments
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newPublisher(conf *core.Config, logger core.Logger) payment.Publisher {
	if len(conf.Kafka.Brokers) == 0 {
		logger.Info("no kafka brokers configured: payment events are not published")
		return events.NoopPublisher{}
	}
	return events.NewKafkaPublisher(conf)
}

func newVerifier(conf *core.Config) (identity.Verifier, error) {
	return authsvc.NewVerifier(context.Background(), conf)
}

func newBackend(conf *core.Config) (payment.Backend, error) {
	return paymentapi.NewClient(conf.Payment.APIBaseURL, conf.Payment.Timeout)
}

func newGateway(r *checkout.Relay) payment.Gateway { return r }

func newDispatcher(r *checkout.Relay) payment.Dispatcher { return r }

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	return validate
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newPaymentRepository))
	must(c.Provide(newEmailService))
	must(c.Provide(newPublisher))
	must(c.Provide(newVerifier))
	must(c.Provide(newBackend))
	must(c.Provide(checkout.NewRelay))
	must(c.Provide(newGateway))
	must(c.Provide(newDispatcher))
	must(c.Provide(newTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(payment.NewService))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
