package app

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ==========================================
// ШАГИ КНОПОК
// ==========================================

const (
	minStepDelay = 0
	maxStepDelay = 10
)

var ErrBadDelay = fmt.Errorf("задержка должна быть от %d до %d секунд", minStepDelay, maxStepDelay)

func validateDelay(delay int) error {
	if delay < minStepDelay || delay > maxStepDelay {
		return ErrBadDelay
	}
	return nil
}

// Steps возвращает шаги кнопки в порядке номеров. Дубликаты номеров
// (наследие старых неатомарных вставок) схлопываются: остается строка
// с минимальным ID, лишние удаляются в той же транзакции.
func (mm *MenuManager) Steps(buttonID uint) ([]ButtonStep, error) {
	var steps []ButtonStep
	err := mm.DB.Transaction(func(tx *gorm.DB) error {
		var all []ButtonStep
		if err := tx.Where("button_id = ?", buttonID).
			Order("step_number, id").Find(&all).Error; err != nil {
			return err
		}

		var extra []uint
		steps = steps[:0]
		lastNumber := -1
		for _, s := range all {
			if s.StepNumber == lastNumber {
				extra = append(extra, s.ID)
				continue
			}
			lastNumber = s.StepNumber
			steps = append(steps, s)
		}
		if len(extra) > 0 {
			return tx.Where("id IN ?", extra).Delete(&ButtonStep{}).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return steps, nil
}

// Step возвращает шаг с данным номером (при дубликатах — с минимальным ID).
func (mm *MenuManager) Step(buttonID uint, stepNumber int) (*ButtonStep, error) {
	var step ButtonStep
	err := mm.DB.Where("button_id = ? AND step_number = ?", buttonID, stepNumber).
		Order("id").First(&step).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &step, nil
}

func (mm *MenuManager) CountSteps(buttonID uint) (int, error) {
	var count int64
	err := mm.DB.Model(&ButtonStep{}).Where("button_id = ?", buttonID).Count(&count).Error
	return int(count), err
}

// AppendStep добавляет шаг в конец последовательности кнопки.
func (mm *MenuManager) AppendStep(buttonID uint, step ButtonStep) (uint, error) {
	if err := validateDelay(step.Delay); err != nil {
		return 0, err
	}
	var id uint
	err := mm.DB.Transaction(func(tx *gorm.DB) error {
		var maxNumber int
		row := tx.Model(&ButtonStep{}).Where("button_id = ?", buttonID).
			Select("COALESCE(MAX(step_number), 0)")
		if err := row.Scan(&maxNumber).Error; err != nil {
			return err
		}
		step.ID = 0
		step.ButtonID = buttonID
		step.StepNumber = maxNumber + 1
		if err := tx.Create(&step).Error; err != nil {
			return err
		}
		id = step.ID
		return nil
	})
	return id, err
}

// InsertStepAt вставляет шаг на позицию position (1..N+1). Все шаги
// с номерами >= position сдвигаются на единицу вверх. Сдвиг и вставка
// выполняются одной транзакцией, так что дыры и дубликаты не возникают.
func (mm *MenuManager) InsertStepAt(buttonID uint, position int, step ButtonStep) (uint, error) {
	if err := validateDelay(step.Delay); err != nil {
		return 0, err
	}
	var id uint
	err := mm.DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ButtonStep{}).Where("button_id = ?", buttonID).
			Count(&count).Error; err != nil {
			return err
		}
		if position < 1 || position > int(count)+1 {
			return fmt.Errorf("позиция должна быть от 1 до %d", count+1)
		}

		if err := tx.Model(&ButtonStep{}).
			Where("button_id = ? AND step_number >= ?", buttonID, position).
			Update("step_number", gorm.Expr("step_number + 1")).Error; err != nil {
			return err
		}

		step.ID = 0
		step.ButtonID = buttonID
		step.StepNumber = position
		if err := tx.Create(&step).Error; err != nil {
			return err
		}
		id = step.ID
		return nil
	})
	return id, err
}

// DeleteStepAt удаляет шаг (включая возможные дубликаты номера)
// и перенумеровывает последующие шаги вниз.
func (mm *MenuManager) DeleteStepAt(buttonID uint, stepNumber int) error {
	return mm.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("button_id = ? AND step_number = ?", buttonID, stepNumber).
			Delete(&ButtonStep{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&ButtonStep{}).
			Where("button_id = ? AND step_number > ?", buttonID, stepNumber).
			Update("step_number", gorm.Expr("step_number - 1")).Error
	})
}

// DeleteSteps удаляет все шаги кнопки.
func (mm *MenuManager) DeleteSteps(buttonID uint) error {
	return mm.DB.Where("button_id = ?", buttonID).Delete(&ButtonStep{}).Error
}

func (mm *MenuManager) UpdateStepDelay(buttonID uint, stepNumber, delay int) error {
	if err := validateDelay(delay); err != nil {
		return err
	}
	result := mm.DB.Model(&ButtonStep{}).
		Where("button_id = ? AND step_number = ?", buttonID, stepNumber).
		Update("delay", delay)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStepContent заменяет содержимое шага. Непустой fileID делает шаг
// файловым, текст без файла — текстовым.
func (mm *MenuManager) UpdateStepContent(buttonID uint, stepNumber int, contentText, fileID, fileType string) error {
	fields := map[string]interface{}{
		"content_text": contentText,
		"file_id":      fileID,
		"file_type":    fileType,
	}
	if fileID != "" {
		fields["content_type"] = contentTypeFile
	} else {
		fields["content_type"] = contentTypeText
	}
	result := mm.DB.Model(&ButtonStep{}).
		Where("button_id = ? AND step_number = ?", buttonID, stepNumber).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// StepsForButtons загружает шаги сразу для набора кнопок одним запросом.
func (mm *MenuManager) StepsForButtons(buttonIDs []uint) (map[uint][]ButtonStep, error) {
	result := make(map[uint][]ButtonStep)
	if len(buttonIDs) == 0 {
		return result, nil
	}
	var steps []ButtonStep
	if err := mm.DB.Where("button_id IN ?", buttonIDs).
		Order("button_id, step_number, id").Find(&steps).Error; err != nil {
		return nil, err
	}
	for _, s := range steps {
		list := result[s.ButtonID]
		if n := len(list); n > 0 && list[n-1].StepNumber == s.StepNumber {
			continue // дубликат номера, держим строку с меньшим ID
		}
		result[s.ButtonID] = append(result[s.ButtonID], s)
	}
	return result, nil
}
