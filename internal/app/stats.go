package app

import (
	"bytes"
	"fmt"
	"log"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	tele "gopkg.in/telebot.v3"
)

// ==========================================
// СТАТИСТИКА ИСПОЛЬЗОВАНИЯ МЕНЮ
// ==========================================

const statsChartDays = 14

// recordButtonView фиксирует открытие кнопки. Пишем в фоне: просмотр
// статистики не должен тормозить отправку контента.
func recordButtonView(buttonID uint, userID int64) {
	safeGo("record-view", func() {
		view := ButtonView{ButtonID: buttonID, UserID: userID}
		if err := menuManager.DB.Create(&view).Error; err != nil {
			log.Printf("⚠️ Не удалось записать просмотр кнопки %d: %v", buttonID, err)
		}
	})
}

type topButton struct {
	ButtonID uint
	Text     string
	Count    int
}

func (mm *MenuManager) TopButtonsByViews(limit int) []topButton {
	if limit <= 0 {
		limit = 5
	}
	type row struct {
		ButtonID uint
		Cnt      int
	}
	var rows []row
	mm.DB.Model(&ButtonView{}).
		Select("button_id, count(*) as cnt").
		Group("button_id").
		Order("cnt desc").
		Limit(limit).
		Scan(&rows)

	var out []topButton
	for _, r := range rows {
		name := fmt.Sprintf("#%d", r.ButtonID)
		if btn, err := mm.ButtonByID(r.ButtonID); err == nil {
			name = btn.Text
		}
		out = append(out, topButton{ButtonID: r.ButtonID, Text: name, Count: r.Cnt})
	}
	return out
}

// ViewsPerDay возвращает количество открытий по дням за последние days дней,
// включая нулевые дни (для ровной оси графика).
func (mm *MenuManager) ViewsPerDay(days int) ([]time.Time, []float64) {
	if days <= 0 {
		days = statsChartDays
	}
	since := time.Now().AddDate(0, 0, -days+1).Truncate(24 * time.Hour)

	var views []ButtonView
	mm.DB.Where("created_at >= ?", since).Find(&views)

	counts := make(map[string]int)
	for _, v := range views {
		counts[v.CreatedAt.Format("2006-01-02")]++
	}

	var dates []time.Time
	var values []float64
	for i := 0; i < days; i++ {
		day := since.AddDate(0, 0, i)
		dates = append(dates, day)
		values = append(values, float64(counts[day.Format("2006-01-02")]))
	}
	return dates, values
}

func renderViewsChart(dates []time.Time, values []float64) ([]byte, error) {
	graph := chart.Chart{
		Background: chart.Style{Padding: chart.Box{Top: 20, Left: 20, Right: 20, Bottom: 20}},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Открытия",
				XValues: dates,
				YValues: values,
				Style:   chart.Style{StrokeColor: chart.ColorBlue, StrokeWidth: 5.0, DotColor: chart.ColorWhite, DotWidth: 4.0},
			},
		},
		XAxis:  chart.XAxis{Name: "Дни", ValueFormatter: chart.TimeValueFormatterWithFormat("02 Jan")},
		YAxis:  chart.YAxis{Name: "Открытия кнопок", ValueFormatter: func(v interface{}) string { return fmt.Sprintf("%.0f", v.(float64)) }},
		Height: 400,
		Width:  800,
	}

	buffer := bytes.NewBuffer([]byte{})
	err := graph.Render(chart.PNG, buffer)
	return buffer.Bytes(), err
}

// sendStatsReport — сводка для админа: размеры дерева, топ кнопок
// и график открытий за последние две недели.
func sendStatsReport(c tele.Context) error {
	var buttonCount, stepCount, viewCount int64
	menuManager.DB.Model(&MenuButton{}).Count(&buttonCount)
	menuManager.DB.Model(&ButtonStep{}).Count(&stepCount)
	menuManager.DB.Model(&ButtonView{}).Count(&viewCount)

	text := fmt.Sprintf("📊 <b>СТАТИСТИКА МЕНЮ</b>\n\n"+
		"🔘 Кнопок: <b>%d</b>\n"+
		"📋 Шагов: <b>%d</b>\n"+
		"👁 Открытий: <b>%d</b>\n\n",
		buttonCount, stepCount, viewCount)

	top := menuManager.TopButtonsByViews(5)
	if len(top) > 0 {
		text += "🏆 <b>ТОП-5 КНОПОК:</b>\n"
		for i, t := range top {
			text += fmt.Sprintf("%d. %s — %d\n", i+1, shorten(t.Text, 30), t.Count)
		}
	}

	if err := c.Send(text, tele.ModeHTML); err != nil {
		return err
	}

	dates, values := menuManager.ViewsPerDay(statsChartDays)
	png, err := renderViewsChart(dates, values)
	if err != nil {
		log.Printf("⚠️ Не удалось построить график: %v", err)
		return nil
	}
	photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(png))}
	return c.Send(photo)
}
