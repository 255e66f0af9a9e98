package seed

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

var states = []string{"CA", "NY", "TX", "FL", "WA"}

var (
	firstNames = []string{"Ava", "Ben", "Chloe", "Diego", "Emma", "Farah", "Grace", "Hiro", "Isla", "Jonas", "Kara", "Liam", "Maya", "Noah", "Olga", "Priya", "Quinn", "Rosa", "Sam", "Tariq"}
	lastNames  = []string{"Adams", "Brooks", "Chen", "Diaz", "Evans", "Fischer", "Garcia", "Hughes", "Ito", "Jensen", "Khan", "Lopez", "Miller", "Nguyen", "Okafor", "Patel", "Reyes", "Smith", "Tanaka", "Walsh"}
)

// Products is the fixed catalogue. EchoSmart Speaker is the trending product:
// it is ordered three times as often and, in CA, only in spring 2025.
var Products = []Product{
	{ID: 1, Name: "Vintage Hoodie", Category: "Apparel", LaunchDate: day(2024, 1, 1)},
	{ID: 2, Name: "Bluetooth Earbuds", Category: "Electronics", LaunchDate: day(2024, 6, 15)},
	{ID: 3, Name: "EchoSmart Speaker", Category: "Electronics", LaunchDate: day(2025, 1, 10)},
}

var productWeights = []int{1, 1, 3}

const trendingProductID = 3

var (
	orderWindowStart    = day(2024, 7, 1)
	trendingWindowStart = day(2025, 2, 1)
	orderWindowEnd      = day(2025, 5, 31)
)

type Customer struct {
	ID    int64
	Name  string
	Email string
	State string
}

type Product struct {
	ID         int64
	Name       string
	Category   string
	LaunchDate time.Time
}

type Order struct {
	ID         int64
	CustomerID int64
	ProductID  int64
	OrderDate  time.Time
	Amount     float64
	Status     string
}

type Dataset struct {
	Customers []Customer
	Products  []Product
	Orders    []Order
}

type Generator struct {
	rnd *rand.Rand
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Generate builds customers with ids 1..customers, each placing 1-4 orders.
func (g *Generator) Generate(customers int) Dataset {
	dataset := Dataset{
		Customers: make([]Customer, 0, customers),
		Products:  append([]Product(nil), Products...),
		Orders:    make([]Order, 0, customers*2),
	}

	var orderID int64 = 1
	for customerID := int64(1); customerID <= int64(customers); customerID++ {
		state := pickOne(g.rnd, states)
		first := pickOne(g.rnd, firstNames)
		last := pickOne(g.rnd, lastNames)
		dataset.Customers = append(dataset.Customers, Customer{
			ID:    customerID,
			Name:  first + " " + last,
			Email: fmt.Sprintf("%s.%s%d@example.com", strings.ToLower(first), strings.ToLower(last), customerID),
			State: state,
		})

		for range g.rnd.Intn(4) + 1 {
			product := g.pickProduct()
			start := orderWindowStart
			if product.ID == trendingProductID && state == "CA" {
				start = trendingWindowStart
			}
			dataset.Orders = append(dataset.Orders, Order{
				ID:         orderID,
				CustomerID: customerID,
				ProductID:  product.ID,
				OrderDate:  g.dateBetween(start, orderWindowEnd),
				Amount:     round2(50 + g.rnd.Float64()*250),
				Status:     "paid",
			})
			orderID++
		}
	}
	return dataset
}

func (g *Generator) pickProduct() Product {
	total := 0
	for _, weight := range productWeights {
		total += weight
	}
	p := g.rnd.Intn(total)
	for i, weight := range productWeights {
		if p < weight {
			return Products[i]
		}
		p -= weight
	}
	return Products[len(Products)-1]
}

// dateBetween returns a uniformly chosen day in [start, end].
func (g *Generator) dateBetween(start, end time.Time) time.Time {
	days := int(end.Sub(start).Hours()/24) + 1
	return start.AddDate(0, 0, g.rnd.Intn(days))
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
