package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"

	"github.com/hackgods/clinicdesk/internal/appointment"
	"github.com/hackgods/clinicdesk/internal/gateway"
	"github.com/hackgods/clinicdesk/internal/logger"
	"github.com/hackgods/clinicdesk/internal/session"
	"github.com/hackgods/clinicdesk/internal/validate"
)

type place struct {
	cep, street, city, uf string
}

var places = []place{
	{"01310100", "Avenida Paulista", "Sao Paulo", "SP"},
	{"20040020", "Avenida Rio Branco", "Rio de Janeiro", "RJ"},
	{"30130010", "Avenida Afonso Pena", "Belo Horizonte", "MG"},
	{"80010000", "Rua XV de Novembro", "Curitiba", "PR"},
	{"90010150", "Rua dos Andradas", "Porto Alegre", "RS"},
	{"40020000", "Rua Chile", "Salvador", "BA"},
}

var genders = []string{"F", "M", "O"}

func main() {
	count := flag.Int("patients", 50, "number of patients to create")
	flag.Parse()

	log, err := logger.New("info", "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	baseURL := os.Getenv("BACKEND_URL")
	if baseURL == "" {
		log.Fatal("BACKEND_URL is required")
	}
	sess, err := session.FromToken(os.Getenv("SEED_TOKEN"), time.Now())
	if err != nil {
		log.Fatal("SEED_TOKEN", zap.Error(err))
	}

	gofakeit.Seed(time.Now().UnixNano())
	gw := gateway.New(baseURL, &http.Client{Timeout: 10 * time.Second}, sess)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*count)*time.Second+30*time.Second)
	defer cancel()

	log.Info("seeding patients", zap.Int("count", *count))
	created := 0
	for i := 0; i < *count; i++ {
		p := fakePatient()
		if err := gw.CreatePatient(ctx, p); err != nil {
			log.Warn("create patient", zap.String("cpf", p.CPF), zap.Error(err))
			continue
		}
		created++
	}
	log.Info("seed complete", zap.Int("created", created), zap.Int("failed", *count-created))
}

// fakePatient builds a patient that passes every form validator.
func fakePatient() appointment.Patient {
	pl := places[gofakeit.Number(0, len(places)-1)]
	ddds := validate.DDDs()

	name := gofakeit.FirstName() + " " + gofakeit.LastName()
	for validate.Name(name) != "" {
		name = gofakeit.FirstName() + " " + gofakeit.LastName()
	}

	cpf := validate.CompleteCPF(fmt.Sprintf("%09d", gofakeit.Number(1, 999999998)))
	for validate.CPF(cpf) != "" {
		cpf = validate.CompleteCPF(fmt.Sprintf("%09d", gofakeit.Number(1, 999999998)))
	}
	phone := fakePhone(ddds)
	for validate.Phone(phone) != "" {
		phone = fakePhone(ddds)
	}
	birth := gofakeit.DateRange(time.Now().AddDate(-90, 0, 0), time.Now().AddDate(-1, 0, 0))

	return appointment.Patient{
		CPF:       cpf,
		Name:      name,
		Email:     gofakeit.Username() + strconv.Itoa(gofakeit.Number(10, 99)) + "@example.com",
		Phone:     phone,
		BirthDate: birth.Format("2006-01-02"),
		Gender:    genders[gofakeit.Number(0, len(genders)-1)],
		CEP:       pl.cep,
		Street:    pl.street,
		Number:    strconv.Itoa(gofakeit.Number(1, 3000)),
		City:      pl.city,
		UF:        pl.uf,
		Active:    true,
	}
}

func fakePhone(ddds []string) string {
	return ddds[gofakeit.Number(0, len(ddds)-1)] + "9" + fmt.Sprintf("%08d", gofakeit.Number(0, 99999999))
}
