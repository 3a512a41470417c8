// Package generator produces realistic surrogate values for masked columns.
package generator

import (
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/jaswdr/faker"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

// DataGenerator generates fake values based on column names and semantic types
type DataGenerator struct {
	Faker     faker.Faker
	Rand      *rand.Rand
	Reference time.Time
	Logger    *logrus.Logger
}

// NewDataGenerator creates a generator whose output is fully determined by seed
func NewDataGenerator(seed int64, logger *logrus.Logger) *DataGenerator {
	return &DataGenerator{
		Faker:     faker.NewWithSeed(rand.NewSource(seed)),
		Rand:      rand.New(rand.NewSource(seed)),
		Reference: time.Now().UTC(),
		Logger:    logger,
	}
}

// GenerateValue returns a surrogate for one cell of column. The value always has the
// column's canonical representation.
func (dg *DataGenerator) GenerateValue(column models.Column) interface{} {
	switch column.Type {
	case models.Integer:
		return dg.generateInteger(column)
	case models.Float:
		return dg.generateFloat(column)
	case models.Date:
		return dg.generateDate(column)
	}
	return dg.generateString(column)
}

// generateString picks a faker generator from the column name
func (dg *DataGenerator) generateString(column models.Column) string {
	columnName := strings.ToLower(column.Name)

	// Handle special column names
	if strings.Contains(columnName, "email") {
		return dg.Faker.Internet().Email()
	} else if strings.Contains(columnName, "name") && !strings.Contains(columnName, "file") {
		if strings.Contains(columnName, "first") {
			return dg.Faker.Person().FirstName()
		} else if strings.Contains(columnName, "last") || strings.Contains(columnName, "surname") {
			return dg.Faker.Person().LastName()
		} else if strings.Contains(columnName, "user") {
			return dg.Faker.Internet().User()
		} else if strings.Contains(columnName, "company") || strings.Contains(columnName, "business") {
			return dg.Faker.Company().Name()
		}
		return dg.Faker.Person().Name()
	} else if strings.Contains(columnName, "phone") {
		return dg.Faker.Phone().Number()
	} else if strings.Contains(columnName, "address") || strings.Contains(columnName, "street") {
		return dg.Faker.Address().Address()
	} else if strings.Contains(columnName, "city") {
		return dg.Faker.Address().City()
	} else if strings.Contains(columnName, "state") || strings.Contains(columnName, "region") {
		return dg.Faker.Address().State()
	} else if strings.Contains(columnName, "country") {
		return dg.Faker.Address().Country()
	} else if strings.Contains(columnName, "zip") || strings.Contains(columnName, "postal") {
		return dg.Faker.Address().PostCode()
	} else if strings.Contains(columnName, "company") || strings.Contains(columnName, "employer") {
		return dg.Faker.Company().Name()
	} else if strings.Contains(columnName, "job") || strings.Contains(columnName, "profession") {
		return dg.Faker.Company().JobTitle()
	} else if strings.Contains(columnName, "url") || strings.Contains(columnName, "website") {
		return dg.Faker.Internet().URL()
	} else if columnName == "ip" || strings.HasSuffix(columnName, "_ip") {
		return dg.Faker.Internet().Ipv4()
	} else if strings.Contains(columnName, "uuid") || strings.Contains(columnName, "guid") {
		return dg.Faker.UUID().V4()
	} else if strings.Contains(columnName, "description") || strings.Contains(columnName, "comment") {
		return dg.Faker.Lorem().Sentence(6)
	}

	return dg.Faker.Lorem().Word()
}

// generateInteger draws from a plausible range for the column
func (dg *DataGenerator) generateInteger(column models.Column) int64 {
	columnName := strings.ToLower(column.Name)

	switch {
	case columnName == "age" || strings.HasSuffix(columnName, "_age"):
		return int64(dg.Rand.Intn(73) + 18)
	case strings.Contains(columnName, "year"):
		return int64(dg.Rand.Intn(dg.Reference.Year()-1950+1) + 1950)
	case strings.Contains(columnName, "zip") || strings.Contains(columnName, "postal"):
		return int64(dg.Rand.Intn(90000) + 10000)
	}
	return dg.Rand.Int63n(100000)
}

// generateFloat returns a value with two decimals
func (dg *DataGenerator) generateFloat(column models.Column) float64 {
	columnName := strings.ToLower(column.Name)

	if strings.Contains(columnName, "lat") {
		return dg.Faker.Address().Latitude()
	} else if strings.Contains(columnName, "lon") || strings.Contains(columnName, "lng") {
		return dg.Faker.Address().Longitude()
	}

	value := dg.Rand.Float64() * 10000
	return math.Round(value*100) / 100
}

// generateDate returns a day within the last five years, or a birth date for birth columns
func (dg *DataGenerator) generateDate(column models.Column) time.Time {
	ref := time.Date(dg.Reference.Year(), dg.Reference.Month(), dg.Reference.Day(), 0, 0, 0, 0, time.UTC)

	if strings.Contains(strings.ToLower(column.Name), "birth") {
		// Adults between 18 and 90 years old
		return ref.AddDate(-18, 0, -dg.Rand.Intn(365*72))
	}

	days := dg.Rand.Intn(365 * 5)
	return ref.AddDate(0, 0, -days)
}
